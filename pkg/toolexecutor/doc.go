// Package toolexecutor registers and executes structured tools for agents.
//
// Invariants:
// - A Registry is an explicit instance owned by a team; there is no global registry.
// - Parameters are schema-validated before execution.
// - Execute never panics and never returns an error: failures are ToolResults.
// - Guardrail checks (Allowed) are pure and are applied by the caller before Execute.
//
// Usage:
//
//	reg := toolexecutor.New()
//	_ = toolexecutor.RegisterBuiltins(reg, toolexecutor.BuiltinOptions{BaseDir: "."})
//	res := reg.Execute(ctx, "calculator", map[string]interface{}{"expression": "2+2"}, nil)
package toolexecutor
