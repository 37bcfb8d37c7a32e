package agent

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/pkg/control"
	"github.com/harun/agentforge/pkg/memory"
	"github.com/harun/agentforge/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

// Agent is a configured agent bound to its tools and memory
type Agent struct {
	cfg    Config
	tools  *toolexecutor.Registry
	memory memory.Store
	logger zerolog.Logger
}

// Option configures an Agent
type Option func(*Agent)

// WithTools binds the registry that executes the agent's tools
func WithTools(reg *toolexecutor.Registry) Option {
	return func(a *Agent) {
		a.tools = reg
	}
}

// WithMemory binds a memory store. A nil store disables memory.
func WithMemory(st memory.Store) Option {
	return func(a *Agent) {
		a.memory = st
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// New creates an Agent, filling unset knobs with defaults
func New(cfg Config, opts ...Option) (*Agent, error) {
	observability.EnsureRegistered()

	if cfg.Name == "" {
		return nil, errors.New("agent name is required")
	}
	if cfg.Role == "" {
		cfg.Role = cfg.Name
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Control.MaxIterations <= 0 {
		cfg.Control.MaxIterations = DefaultMaxIterations
	}
	if cfg.Control.RecallLimit <= 0 {
		cfg.Control.RecallLimit = DefaultRecallLimit
	}

	a := &Agent{
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if len(cfg.Tools) > 0 {
		if a.tools == nil {
			return nil, fmt.Errorf("agent %s binds tools but no registry was provided", cfg.Name)
		}
		for _, name := range cfg.Tools {
			if !a.tools.Has(name) {
				return nil, fmt.Errorf("agent %s: %w: %s", cfg.Name, toolexecutor.ErrToolNotFound, name)
			}
		}
	}

	return a, nil
}

// Name returns the agent name
func (a *Agent) Name() string { return a.cfg.Name }

// Config returns a copy of the agent configuration
func (a *Agent) Config() Config { return a.cfg }

// HasMemory reports whether a memory store is bound
func (a *Agent) HasMemory() bool { return a.memory != nil }

// allowedTools returns the bound tools that pass the guardrails, in bound order.
func (a *Agent) allowedTools() []string {
	return toolexecutor.FilterAllowed(a.cfg.Tools, a.cfg.Control.AllowedActions, a.cfg.Control.BlockedActions)
}

func (a *Agent) isBound(tool string) bool {
	for _, t := range a.cfg.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

func (a *Agent) confidence() control.ConfidenceChecker {
	return control.ConfidenceChecker{Threshold: a.cfg.Control.ConfidenceThreshold}
}

// SystemPrompt assembles the system message from the agent's prompt material,
// its allowed tools and any recalled memory.
func (a *Agent) SystemPrompt(memoryContext string) string {
	parts := []string{
		fmt.Sprintf("You are %s.", a.cfg.Role),
		fmt.Sprintf("\nYour goal: %s", a.cfg.Goal),
	}

	if a.cfg.Backstory != "" {
		parts = append(parts, "\n"+a.cfg.Backstory)
	}
	if a.cfg.Instructions != "" {
		parts = append(parts, "\n"+a.cfg.Instructions)
	}

	if allowed := a.allowedTools(); len(allowed) > 0 && a.tools != nil {
		var descriptions []string
		for _, schema := range a.tools.Schemas(allowed) {
			descriptions = append(descriptions, fmt.Sprintf("  • %s: %s\n%s",
				schema.Name, schema.Description, describeParameters(schema.Parameters)))
		}
		parts = append(parts, "\nYou have access to the following tools:\n"+strings.Join(descriptions, "\n"))
	}

	if memoryContext != "" {
		parts = append(parts, "\nHere is relevant context from previous work:\n"+memoryContext)
	}

	parts = append(parts, "\nGuidelines:\n"+
		"- Use tools when you need external information or actions.\n"+
		"- When you have enough information, respond directly without tool calls.\n"+
		"- Be precise and factual.")

	return strings.Join(parts, "\n")
}

func describeParameters(schema map[string]interface{}) string {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok || len(props) == 0 {
		return ""
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		info, _ := props[name].(map[string]interface{})
		ptype, _ := info["type"].(string)
		if ptype == "" {
			ptype = "string"
		}
		pdesc, _ := info["description"].(string)
		lines = append(lines, fmt.Sprintf("    - %s (%s): %s", name, ptype, pdesc))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
