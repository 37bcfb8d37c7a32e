package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. AGENTFORGE_TEAM_LLM
const EnvPrefix = "AGENTFORGE"

// DefaultFileName is looked up when no config path is given
const DefaultFileName = "agents.yaml"

// ErrNotFound is returned when the config file does not exist
var ErrNotFound = errors.New("configuration file not found")

// envKeys are the settings that environment variables may override.
var envKeys = []string{
	"team.name",
	"team.llm",
	"team.temperature",
	"team.max_tokens",
	"team.memory.enabled",
	"team.memory.backend",
	"team.memory.path",
	"team.memory.shared",
	"team.observe.log_level",
	"team.observe.log_format",
	"team.observe.log_file",
	"team.observe.trace_file",
	"team.observe.audit_log",
	"team.observe.opentelemetry",
	"team.observe.span_file",
	"team.observe.otlp_endpoint",
	"team.control.dry_run",
	"team.control.max_retries",
	"team.control.timeout",
	"tools.base_dir",
	"tools.browser.enabled",
	"dashboard.host",
	"dashboard.port",
}

// envOverlay is the env-overridable part of Config. Agents and workflow are
// left out because viper folds map keys to lower case.
type envOverlay struct {
	Team      TeamConfig      `mapstructure:"team"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return DefaultFileName
}

// Load reads the file over DefaultConfig, then applies AGENTFORGE_* overrides.
// It does not validate.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at '%s': run 'agentforge init' to create one, or pass --config", ErrNotFound, configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if ext := strings.TrimPrefix(filepath.Ext(configPath), "."); ext == "yml" || ext == "" {
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	overlay := envOverlay{Team: cfg.Team, Tools: cfg.Tools, Dashboard: cfg.Dashboard}
	if err := v.Unmarshal(&overlay); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg.Team = overlay.Team
	cfg.Tools = overlay.Tools
	cfg.Dashboard = overlay.Dashboard

	return cfg, nil
}

// Save writes cfg as YAML
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Parse decodes a YAML (or JSON) document over DefaultConfig.
func Parse(data []byte) (*Config, error) {
	var probe interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("YAML syntax error: %w", err)
	}
	if probe == nil {
		return nil, errors.New("configuration is empty")
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("configuration must be a mapping, got %T", probe)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
	return cfg, nil
}
