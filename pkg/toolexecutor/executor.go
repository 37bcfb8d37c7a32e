package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/harun/agentforge/pkg/llm"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultTimeout = 30 * time.Second
	maxOutputSize  = 10 * 1024
)

// ErrToolNotFound is returned for names that are not registered
var ErrToolNotFound = errors.New("tool not found")

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	// Items is the JSON Schema type of array elements.
	Items string `json:"items,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution. The returned
// value is rendered to text with fmt.Sprint.
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// CallOptions carries per-call settings for Registry.Execute
type CallOptions struct {
	// Agent is the agent requesting the call, for logs and audit.
	Agent string
	// WorkingDir overrides the file tools' base directory when set.
	WorkingDir string
	// Timeout bounds one call. Defaults to 30s.
	Timeout time.Duration
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success   bool          `json:"success"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Registry holds the tools available to one team. It is an explicit instance:
// nothing is registered globally.
type Registry struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// New creates an empty Registry
func New() *Registry {
	observability.EnsureRegistered()
	return &Registry{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// RegisterTool registers a new tool, replacing any tool of the same name
func (r *Registry) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap(def)))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// UnregisterTool removes a tool
func (r *Registry) UnregisterTool(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tools, name)
	delete(r.schemas, name)
}

// GetTool returns a tool definition by name
func (r *Registry) GetTool(name string) *ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.tools[name]
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	return r.GetTool(name) != nil
}

// ListTools returns all registered tool names, sorted
func (r *Registry) ListTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]string, 0, len(r.tools))
	for name := range r.tools {
		tools = append(tools, name)
	}
	sort.Strings(tools)

	return tools
}

// Schemas returns model-facing schemas for names, skipping unknown tools.
func (r *Registry) Schemas(names []string) []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		def, ok := r.tools[name]
		if !ok {
			continue
		}
		out = append(out, llm.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  schemaMap(*def),
		})
	}
	return out
}

// Execute validates params against the tool's schema and runs it under a timeout.
// Failures are reported in the result, never as a panic or error return.
func (r *Registry) Execute(ctx context.Context, toolName string, params map[string]interface{}, opts *CallOptions) ToolResult {
	startTime := time.Now()
	if params == nil {
		params = map[string]interface{}{}
	}

	agent := ""
	if opts != nil {
		agent = opts.Agent
	}

	ctx, span := tracing.StartSpan(ctx, "agentforge.tools", "tool.execute", attribute.String("tool.name", toolName))
	defer span.End()

	result := r.execute(ctx, toolName, params, opts)
	result.Duration = time.Since(startTime)

	status := "success"
	if !result.Success {
		status = "failure"
		tracing.FailSpan(span, errors.New(result.Error))
	}
	observability.RecordToolExecution(toolName, result.Duration, result.Success)
	observability.RecordToolAudit(ctx, toolName, agent, status, map[string]interface{}{
		"duration_ms": result.Duration.Milliseconds(),
	})

	return result
}

func (r *Registry) execute(ctx context.Context, toolName string, params map[string]interface{}, opts *CallOptions) ToolResult {
	r.mu.RLock()
	tool := r.tools[toolName]
	schema := r.schemas[toolName]
	r.mu.RUnlock()

	if tool == nil {
		log.Error().Str("tool", toolName).Msg("Tool not found")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("%v: %s", ErrToolNotFound, toolName),
		}
	}

	if err := validateParameters(schema, params); err != nil {
		log.Error().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}
	}

	timeout := defaultTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(withCallOptions(ctx, opts), timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errChan <- fmt.Errorf("tool panicked: %v", rec)
			}
		}()
		result, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		output, truncated := truncateOutput(result)
		log.Debug().
			Str("tool", toolName).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return ToolResult{
			Success:   true,
			Output:    output,
			Truncated: truncated,
		}

	case err := <-errChan:
		log.Debug().Str("tool", toolName).Err(err).Msg("Tool execution failed")
		return ToolResult{
			Success: false,
			Error:   err.Error(),
		}

	case <-timeoutCtx.Done():
		log.Warn().Str("tool", toolName).Dur("timeout", timeout).Msg("Tool execution timeout")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool execution timeout after %v", timeout),
		}
	}
}

func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
	}

	return nil
}

// schemaMap renders the JSON Schema object for a tool's parameters.
func schemaMap(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []interface{}{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if param.Type == "array" && param.Items != "" {
			paramSchema["items"] = map[string]interface{}{"type": param.Items}
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	out := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

func truncateOutput(output interface{}) (string, bool) {
	var str string
	switch v := output.(type) {
	case nil:
		str = ""
	case string:
		str = v
	default:
		str = fmt.Sprint(v)
	}

	if len(str) <= maxOutputSize {
		return str, false
	}

	log.Warn().
		Int("original", len(str)).
		Int("truncated", maxOutputSize).
		Msg("Output truncated")

	return str[:maxOutputSize] + "\n... [output truncated]", true
}
