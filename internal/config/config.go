package config

import (
	"encoding/json"
	"time"
)

const (
	DefaultTeamName   = "AgentForge Team"
	DefaultModel      = "openai/gpt-4o-mini"
	DefaultMemoryPath = ".agentforge/memory.db"
	DefaultPort       = 8420
)

// Config is the whole agents.yaml document
type Config struct {
	Team      TeamConfig             `json:"team" yaml:"team" mapstructure:"team"`
	Agents    map[string]AgentConfig `json:"agents" yaml:"agents" mapstructure:"agents"`
	Workflow  WorkflowConfig         `json:"workflow" yaml:"workflow" mapstructure:"workflow"`
	Tools     ToolsConfig            `json:"tools" yaml:"tools" mapstructure:"tools"`
	Dashboard DashboardConfig        `json:"dashboard" yaml:"dashboard" mapstructure:"dashboard"`
	Hooks     []HookConfig           `json:"hooks,omitempty" yaml:"hooks,omitempty" mapstructure:"hooks"`
}

// TeamConfig holds team-wide defaults
type TeamConfig struct {
	Name        string        `json:"name" yaml:"name" mapstructure:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	LLM         string        `json:"llm" yaml:"llm" mapstructure:"llm"`
	Temperature float64       `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Memory      MemoryConfig  `json:"memory" yaml:"memory" mapstructure:"memory"`
	Observe     ObserveConfig `json:"observe" yaml:"observe" mapstructure:"observe"`
	Control     ControlConfig `json:"control" yaml:"control" mapstructure:"control"`
}

// MemoryConfig selects the memory backend shared by the team
type MemoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"` // sqlite, memory, vector
	Path    string `json:"path" yaml:"path" mapstructure:"path"`
	Shared  bool   `json:"shared" yaml:"shared" mapstructure:"shared"`
	// MaxItems sizes the in-memory window
	MaxItems       int    `json:"max_items,omitempty" yaml:"max_items,omitempty" mapstructure:"max_items"`
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty" mapstructure:"embedding_model"`
}

// ObserveConfig holds logging, tracing and cost settings
type ObserveConfig struct {
	LogLevel      string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`    // debug, info, warning, error
	LogFormat     string `json:"log_format" yaml:"log_format" mapstructure:"log_format"` // pretty, json
	LogFile       string `json:"log_file,omitempty" yaml:"log_file,omitempty" mapstructure:"log_file"`
	CostTracking  bool   `json:"cost_tracking" yaml:"cost_tracking" mapstructure:"cost_tracking"`
	TraceFile     string `json:"trace_file,omitempty" yaml:"trace_file,omitempty" mapstructure:"trace_file"`
	AuditLog      string `json:"audit_log,omitempty" yaml:"audit_log,omitempty" mapstructure:"audit_log"`
	OpenTelemetry bool   `json:"opentelemetry,omitempty" yaml:"opentelemetry,omitempty" mapstructure:"opentelemetry"`
	// SpanFile receives finished spans as JSON lines when OpenTelemetry is on.
	SpanFile string `json:"span_file,omitempty" yaml:"span_file,omitempty" mapstructure:"span_file"`
	// OTLPEndpoint is a host:port of an OTLP/gRPC collector.
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty" mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure,omitempty" yaml:"otlp_insecure,omitempty" mapstructure:"otlp_insecure"`
}

// ControlConfig holds run-wide control defaults
type ControlConfig struct {
	DryRun     bool `json:"dry_run" yaml:"dry_run" mapstructure:"dry_run"`
	MaxRetries int  `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	// Timeout per step in seconds. Zero disables it.
	Timeout             float64 `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	// RequestsPerSecond paces model calls per model. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
}

// StepTimeout returns the default step timeout
func (c ControlConfig) StepTimeout() time.Duration {
	return seconds(c.Timeout)
}

// AgentConfig defines one agent. Unset pointers inherit team values.
type AgentConfig struct {
	Role         string             `json:"role" yaml:"role" mapstructure:"role"`
	Goal         string             `json:"goal" yaml:"goal" mapstructure:"goal"`
	Backstory    string             `json:"backstory,omitempty" yaml:"backstory,omitempty" mapstructure:"backstory"`
	Instructions string             `json:"instructions,omitempty" yaml:"instructions,omitempty" mapstructure:"instructions"`
	LLM          string             `json:"llm,omitempty" yaml:"llm,omitempty" mapstructure:"llm"`
	Fallback     []string           `json:"fallback,omitempty" yaml:"fallback,omitempty" mapstructure:"fallback"`
	Temperature  *float64           `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens    int                `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Tools        []string           `json:"tools,omitempty" yaml:"tools,omitempty" mapstructure:"tools"`
	Memory       *bool              `json:"memory,omitempty" yaml:"memory,omitempty" mapstructure:"memory"`
	Control      AgentControlConfig `json:"control" yaml:"control" mapstructure:"control"`
}

// AgentControlConfig holds the per-agent loop knobs
type AgentControlConfig struct {
	MaxIterations       int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" mapstructure:"max_iterations"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty" mapstructure:"confidence_threshold"`
	RecallLimit         int      `json:"recall_limit,omitempty" yaml:"recall_limit,omitempty" mapstructure:"recall_limit"`
	AllowedActions      []string `json:"allowed_actions,omitempty" yaml:"allowed_actions,omitempty" mapstructure:"allowed_actions"`
	BlockedActions      []string `json:"blocked_actions,omitempty" yaml:"blocked_actions,omitempty" mapstructure:"blocked_actions"`
}

// WorkflowConfig is the ordered step list
type WorkflowConfig struct {
	Steps []StepConfig `json:"steps" yaml:"steps" mapstructure:"steps"`
}

// StepConfig is either a step or, when Parallel is set, a parallel group.
type StepConfig struct {
	ID           string  `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Agent        string  `json:"agent,omitempty" yaml:"agent,omitempty" mapstructure:"agent"`
	Task         string  `json:"task,omitempty" yaml:"task,omitempty" mapstructure:"task"`
	OutputFormat string  `json:"output_format,omitempty" yaml:"output_format,omitempty" mapstructure:"output_format"`
	Timeout      float64 `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	RetryOnFail  int     `json:"retry_on_fail,omitempty" yaml:"retry_on_fail,omitempty" mapstructure:"retry_on_fail"`
	ApprovalGate bool    `json:"approval_gate,omitempty" yaml:"approval_gate,omitempty" mapstructure:"approval_gate"`
	DryRun       *bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty" mapstructure:"dry_run"`
	Condition    string  `json:"condition,omitempty" yaml:"condition,omitempty" mapstructure:"condition"`
	SaveAs       string  `json:"save_as,omitempty" yaml:"save_as,omitempty" mapstructure:"save_as"`
	OnSuccess    string  `json:"on_success,omitempty" yaml:"on_success,omitempty" mapstructure:"on_success"`
	OnFail       string  `json:"on_fail,omitempty" yaml:"on_fail,omitempty" mapstructure:"on_fail"`
	Next         string  `json:"next,omitempty" yaml:"next,omitempty" mapstructure:"next"`

	Parallel []StepConfig `json:"parallel,omitempty" yaml:"parallel,omitempty" mapstructure:"parallel"`
}

// IsParallel reports whether the element is a parallel group
func (s StepConfig) IsParallel() bool {
	return s.Parallel != nil
}

// TimeoutDuration returns the step timeout
func (s StepConfig) TimeoutDuration() time.Duration {
	return seconds(s.Timeout)
}

// ToolsConfig configures the built-in tools
type ToolsConfig struct {
	// BaseDir confines the file tools
	BaseDir              string        `json:"base_dir" yaml:"base_dir" mapstructure:"base_dir"`
	HTTPTimeout          float64       `json:"http_timeout" yaml:"http_timeout" mapstructure:"http_timeout"`
	AllowPrivateNetworks bool          `json:"allow_private_networks,omitempty" yaml:"allow_private_networks,omitempty" mapstructure:"allow_private_networks"`
	Browser              BrowserConfig `json:"browser" yaml:"browser" mapstructure:"browser"`
}

// BrowserConfig configures the web_page tool
type BrowserConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Headless   bool   `json:"headless" yaml:"headless" mapstructure:"headless"`
	ControlURL string `json:"control_url,omitempty" yaml:"control_url,omitempty" mapstructure:"control_url"`
}

// DashboardConfig holds dashboard server settings
type DashboardConfig struct {
	Host string `json:"host" yaml:"host" mapstructure:"host"`
	Port int    `json:"port" yaml:"port" mapstructure:"port"`
}

// HookConfig runs a shell command when a run emits an event of kind On.
type HookConfig struct {
	On   string `json:"on" yaml:"on" mapstructure:"on"`
	Run  string `json:"run" yaml:"run" mapstructure:"run"`
	Step string `json:"step,omitempty" yaml:"step,omitempty" mapstructure:"step"`
	// Timeout in seconds. Zero uses the hook default.
	Timeout float64 `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// TimeoutDuration returns the hook timeout
func (h HookConfig) TimeoutDuration() time.Duration {
	return seconds(h.Timeout)
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Team: TeamConfig{
			Name:        DefaultTeamName,
			LLM:         DefaultModel,
			Temperature: 0.7,
			MaxTokens:   4096,
			Memory: MemoryConfig{
				Enabled: true,
				Backend: "sqlite",
				Path:    DefaultMemoryPath,
				Shared:  true,
			},
			Observe: ObserveConfig{
				LogLevel:     "info",
				LogFormat:    "pretty",
				CostTracking: true,
			},
			Control: ControlConfig{
				DryRun:              false,
				MaxRetries:          3,
				Timeout:             300,
				ConfidenceThreshold: 0.4,
			},
		},
		Agents: map[string]AgentConfig{},
		Tools: ToolsConfig{
			BaseDir:     ".",
			HTTPTimeout: 30,
			Browser: BrowserConfig{
				Enabled:  false,
				Headless: true,
			},
		},
		Dashboard: DashboardConfig{
			Host: "127.0.0.1",
			Port: DefaultPort,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// AgentNames returns the configured agent names, sorted
func (c *Config) AgentNames() []string {
	return sortedKeys(c.Agents)
}

// StepCount counts steps, parallel members included
func (c *Config) StepCount() int {
	n := 0
	for _, s := range c.Workflow.Steps {
		if s.IsParallel() {
			n += len(s.Parallel)
		} else {
			n++
		}
	}
	return n
}

// HasStep reports whether a step, parallel members included, has the given id
func (c *Config) HasStep(id string) bool {
	for _, s := range c.Workflow.Steps {
		if s.ID == id {
			return true
		}
		for _, p := range s.Parallel {
			if p.ID == id {
				return true
			}
		}
	}
	return false
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
