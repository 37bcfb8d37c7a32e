package config

import (
	"fmt"
	"sort"
	"strings"
)

var (
	validBackends      = []string{"sqlite", "memory", "vector"}
	validLogLevels     = []string{"debug", "info", "warning", "error"}
	validLogFormats    = []string{"pretty", "json"}
	validOutputFormats = []string{"text", "markdown", "json"}
)

// ValidationError is one problem found in a config document
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Validate
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	lines := make([]string, len(e))
	for i, v := range e {
		lines[i] = "  - " + v.Error()
	}
	return "configuration validation failed:\n" + strings.Join(lines, "\n")
}

// Validator checks a Config. KnownTools, when set, restricts agent tools.
type Validator struct {
	KnownTools []string
}

// NewValidator creates a new validator
func NewValidator(knownTools ...string) *Validator {
	return &Validator{KnownTools: knownTools}
}

// Validate checks cfg with no tool restriction
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// Validate returns ValidationErrors listing every problem, or nil.
func (v *Validator) Validate(cfg *Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	v.validateTeam(cfg, add)

	if len(cfg.Agents) == 0 {
		add("agents", "at least one agent must be configured")
	}
	for _, name := range cfg.AgentNames() {
		v.validateAgent(name, cfg.Agents[name], add)
	}

	v.validateWorkflow(cfg, add)

	if cfg.Tools.HTTPTimeout < 0 {
		add("tools.http_timeout", "must be >= 0, got %v", cfg.Tools.HTTPTimeout)
	}
	if cfg.Dashboard.Port < 0 || cfg.Dashboard.Port > 65535 {
		add("dashboard.port", "must be between 0 and 65535, got %d", cfg.Dashboard.Port)
	}
	for i, h := range cfg.Hooks {
		field := fmt.Sprintf("hooks[%d]", i)
		if strings.TrimSpace(h.On) == "" {
			add(field+".on", "is required")
		}
		if strings.TrimSpace(h.Run) == "" {
			add(field+".run", "is required")
		}
		if h.Timeout < 0 {
			add(field+".timeout", "must be >= 0, got %v", h.Timeout)
		}
		if h.Step != "" && !cfg.HasStep(h.Step) {
			add(field+".step", "references unknown step '%s'", h.Step)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

type addFunc func(field, format string, args ...interface{})

func (v *Validator) validateTeam(cfg *Config, add addFunc) {
	team := cfg.Team

	if !strings.Contains(team.LLM, "/") {
		add("team.llm", "must be in 'provider/model' format (e.g., 'openai/gpt-4o-mini'), got '%s'", team.LLM)
	}
	if team.Temperature < 0 || team.Temperature > 2 {
		add("team.temperature", "must be between 0.0 and 2.0, got %v", team.Temperature)
	}
	if team.MaxTokens <= 0 {
		add("team.max_tokens", "must be positive, got %d", team.MaxTokens)
	}
	if !contains(validBackends, team.Memory.Backend) {
		add("team.memory.backend", "must be one of %s, got '%s'", strings.Join(validBackends, ", "), team.Memory.Backend)
	}
	if team.Memory.Backend != "memory" && team.Memory.Enabled && team.Memory.Path == "" {
		add("team.memory.path", "is required for the %s backend", team.Memory.Backend)
	}
	if !contains(validLogLevels, team.Observe.LogLevel) {
		add("team.observe.log_level", "must be one of %s, got '%s'", strings.Join(validLogLevels, ", "), team.Observe.LogLevel)
	}
	if !contains(validLogFormats, team.Observe.LogFormat) {
		add("team.observe.log_format", "must be one of %s, got '%s'", strings.Join(validLogFormats, ", "), team.Observe.LogFormat)
	}
	if team.Control.MaxRetries < 0 {
		add("team.control.max_retries", "must be >= 0, got %d", team.Control.MaxRetries)
	}
	if team.Control.Timeout < 0 {
		add("team.control.timeout", "must be >= 0, got %v", team.Control.Timeout)
	}
	if team.Control.ConfidenceThreshold < 0 || team.Control.ConfidenceThreshold > 1 {
		add("team.control.confidence_threshold", "must be between 0 and 1, got %v", team.Control.ConfidenceThreshold)
	}
	if team.Control.RequestsPerSecond < 0 {
		add("team.control.requests_per_second", "must be >= 0, got %v", team.Control.RequestsPerSecond)
	}
}

func (v *Validator) validateAgent(name string, agent AgentConfig, add addFunc) {
	field := "agents." + name

	if strings.TrimSpace(agent.Role) == "" {
		add(field+".role", "is required")
	}
	if strings.TrimSpace(agent.Goal) == "" {
		add(field+".goal", "is required")
	}
	if agent.LLM != "" && !strings.Contains(agent.LLM, "/") {
		add(field+".llm", "must be in 'provider/model' format, got '%s'", agent.LLM)
	}
	for i, fb := range agent.Fallback {
		if !strings.Contains(fb, "/") {
			add(fmt.Sprintf("%s.fallback[%d]", field, i), "must be in 'provider/model' format, got '%s'", fb)
		}
	}
	if agent.Temperature != nil && (*agent.Temperature < 0 || *agent.Temperature > 2) {
		add(field+".temperature", "must be between 0.0 and 2.0, got %v", *agent.Temperature)
	}
	if agent.MaxTokens < 0 {
		add(field+".max_tokens", "must be positive, got %d", agent.MaxTokens)
	}
	if agent.Control.MaxIterations < 0 {
		add(field+".control.max_iterations", "must be >= 0, got %d", agent.Control.MaxIterations)
	}
	if agent.Control.RecallLimit < 0 {
		add(field+".control.recall_limit", "must be >= 0, got %d", agent.Control.RecallLimit)
	}
	if th := agent.Control.ConfidenceThreshold; th != nil && (*th < 0 || *th > 1) {
		add(field+".control.confidence_threshold", "must be between 0 and 1, got %v", *th)
	}
	if len(v.KnownTools) > 0 {
		for _, tool := range agent.Tools {
			if !contains(v.KnownTools, tool) {
				add(field+".tools", "unknown tool '%s' (available: %s)", tool, strings.Join(v.KnownTools, ", "))
			}
		}
	}
}

func (v *Validator) validateWorkflow(cfg *Config, add addFunc) {
	if len(cfg.Workflow.Steps) == 0 {
		add("workflow.steps", "at least one step must be configured")
		return
	}

	seen := make(map[string]string)
	checkStep := func(field string, s StepConfig) {
		if strings.TrimSpace(s.ID) == "" {
			add(field+".id", "is required")
		} else if prev, dup := seen[s.ID]; dup {
			add(field+".id", "duplicate step id '%s' (also at %s)", s.ID, prev)
		} else {
			seen[s.ID] = field
		}
		if strings.TrimSpace(s.Task) == "" {
			add(field+".task", "is required")
		}
		if s.Agent == "" {
			add(field+".agent", "is required")
		} else if _, ok := cfg.Agents[s.Agent]; !ok {
			add(field+".agent", "step '%s' references agent '%s' which is not defined. Available: %s",
				s.ID, s.Agent, strings.Join(cfg.AgentNames(), ", "))
		}
		if s.OutputFormat != "" && !contains(validOutputFormats, s.OutputFormat) {
			add(field+".output_format", "must be one of %s, got '%s'", strings.Join(validOutputFormats, ", "), s.OutputFormat)
		}
		if s.Timeout < 0 {
			add(field+".timeout", "must be >= 0, got %v", s.Timeout)
		}
		if s.RetryOnFail < 0 {
			add(field+".retry_on_fail", "must be >= 0, got %d", s.RetryOnFail)
		}
	}

	for i, el := range cfg.Workflow.Steps {
		field := fmt.Sprintf("workflow.steps[%d]", i)
		if !el.IsParallel() {
			checkStep(field, el)
			continue
		}

		if len(el.Parallel) == 0 {
			add(field+".parallel", "must list at least one step")
		}
		bare := el
		bare.Parallel = nil
		if !isZeroStep(bare) {
			add(field, "a parallel element may not set other keys")
		}
		for j, member := range el.Parallel {
			mfield := fmt.Sprintf("%s.parallel[%d]", field, j)
			if member.IsParallel() {
				add(mfield, "parallel groups may not be nested")
				continue
			}
			checkStep(mfield, member)
		}
	}
}

// Warnings lists branch targets that name no step. The scheduler ignores such
// targets, so they do not fail validation.
func (c *Config) Warnings() []string {
	ids := make(map[string]bool)
	var steps []StepConfig
	for _, el := range c.Workflow.Steps {
		if el.IsParallel() {
			steps = append(steps, el.Parallel...)
		} else {
			steps = append(steps, el)
		}
	}
	for _, s := range steps {
		ids[s.ID] = true
	}

	var warnings []string
	for _, s := range steps {
		for _, t := range []struct{ key, target string }{
			{"on_success", s.OnSuccess},
			{"on_fail", s.OnFail},
			{"next", s.Next},
		} {
			if t.target != "" && !ids[t.target] {
				warnings = append(warnings, fmt.Sprintf("step '%s': %s target '%s' is not a step id and will be ignored", s.ID, t.key, t.target))
			}
		}
	}
	for _, el := range c.Workflow.Steps {
		if !el.IsParallel() {
			continue
		}
		for _, m := range el.Parallel {
			if m.OnSuccess != "" || m.OnFail != "" || m.Next != "" {
				warnings = append(warnings, fmt.Sprintf("step '%s': branch targets are not followed inside a parallel group", m.ID))
			}
		}
	}
	return warnings
}

func isZeroStep(s StepConfig) bool {
	return s.ID == "" && s.Agent == "" && s.Task == "" && s.OutputFormat == "" &&
		s.Timeout == 0 && s.RetryOnFail == 0 && !s.ApprovalGate && s.DryRun == nil &&
		s.Condition == "" && s.SaveAs == "" && s.OnSuccess == "" && s.OnFail == "" && s.Next == ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]AgentConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
