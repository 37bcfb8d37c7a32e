// Package agent runs one LLM-backed agent on one task with a bounded
// tool-calling loop.
//
// Invariants:
// - At most MaxIterations model calls are made per Execute.
// - Tool calls go through the agent's guardrails, then the toolexecutor Registry (or the dry-run simulator).
// - Router, tool and memory failures are captured in the Result; Execute never panics or returns an error.
//
// Usage:
//
//	a, _ := agent.New(agent.Config{Name: "researcher", Role: "Researcher", Goal: "Find facts"},
//		agent.WithTools(registry), agent.WithMemory(store))
//	res := a.Execute(ctx, "Summarise X", agent.RunOptions{Router: router, Sink: tracer})
//	_ = res.Output
package agent
