package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
team:
  name: Research Crew
  llm: anthropic/claude-sonnet-4
  temperature: 0.3
  control:
    max_retries: 1
    timeout: 60
agents:
  Researcher:
    role: Analyst
    goal: Find facts
    llm: openai/gpt-4o
    fallback: [openai/gpt-4o-mini]
    temperature: 0.2
    tools: [calculator]
    control:
      max_iterations: 4
      confidence_threshold: 0.6
      blocked_actions: [file_write]
workflow:
  steps:
    - id: research
      agent: Researcher
      task: "{{input}}"
      save_as: findings
      retry_on_fail: 2
    - parallel:
        - {id: a, agent: Researcher, task: "one"}
        - {id: b, agent: Researcher, task: "two", timeout: 5}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/agents.yaml")
	assert.Equal(t, "/path/to/agents.yaml", loader.GetConfigPath())
	assert.Equal(t, DefaultFileName, NewLoader("").GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("should load config from file", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, sampleYAML))
		require.NoError(t, err)

		assert.Equal(t, "Research Crew", cfg.Team.Name)
		assert.Equal(t, "anthropic/claude-sonnet-4", cfg.Team.LLM)
		assert.Equal(t, 0.3, cfg.Team.Temperature)
		assert.Equal(t, 1, cfg.Team.Control.MaxRetries)
		assert.Equal(t, 60.0, cfg.Team.Control.Timeout)

		agent, ok := cfg.Agents["Researcher"]
		require.True(t, ok, "agent names keep their case")
		assert.Equal(t, "openai/gpt-4o", agent.LLM)
		assert.Equal(t, []string{"openai/gpt-4o-mini"}, agent.Fallback)
		require.NotNil(t, agent.Temperature)
		assert.Equal(t, 0.2, *agent.Temperature)
		assert.Equal(t, 4, agent.Control.MaxIterations)
		require.NotNil(t, agent.Control.ConfidenceThreshold)
		assert.Equal(t, 0.6, *agent.Control.ConfidenceThreshold)
		assert.Equal(t, []string{"file_write"}, agent.Control.BlockedActions)

		require.Len(t, cfg.Workflow.Steps, 2)
		assert.Equal(t, "findings", cfg.Workflow.Steps[0].SaveAs)
		assert.Equal(t, 2, cfg.Workflow.Steps[0].RetryOnFail)
		require.True(t, cfg.Workflow.Steps[1].IsParallel())
		assert.Equal(t, 5.0, cfg.Workflow.Steps[1].Parallel[1].Timeout)
	})

	t.Run("should keep defaults for unset keys", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, sampleYAML))
		require.NoError(t, err)

		assert.Equal(t, 4096, cfg.Team.MaxTokens)
		assert.Equal(t, "sqlite", cfg.Team.Memory.Backend)
		assert.Equal(t, 0.4, cfg.Team.Control.ConfidenceThreshold)
		assert.Equal(t, 8420, cfg.Dashboard.Port)
	})

	t.Run("should apply environment overrides", func(t *testing.T) {
		t.Setenv("AGENTFORGE_TEAM_LLM", "openai/gpt-4o")
		t.Setenv("AGENTFORGE_TEAM_CONTROL_DRY_RUN", "true")
		t.Setenv("AGENTFORGE_DASHBOARD_PORT", "9000")

		cfg, err := Load(writeConfig(t, sampleYAML))
		require.NoError(t, err)

		assert.Equal(t, "openai/gpt-4o", cfg.Team.LLM)
		assert.True(t, cfg.Team.Control.DryRun)
		assert.Equal(t, 9000, cfg.Dashboard.Port)
		assert.Equal(t, "Research Crew", cfg.Team.Name)
		assert.Contains(t, cfg.Agents, "Researcher")
	})

	t.Run("should report a missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "agentforge init")
	})

	t.Run("should report syntax errors with the path", func(t *testing.T) {
		path := writeConfig(t, "team: [unclosed")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), path)
		assert.Contains(t, err.Error(), "YAML syntax error")
	})
}

func TestParse(t *testing.T) {
	t.Run("should reject an empty document", func(t *testing.T) {
		_, err := Parse([]byte("   \n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("should reject a non-mapping document", func(t *testing.T) {
		_, err := Parse([]byte("- a\n- b\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mapping")
	})

	t.Run("should accept JSON", func(t *testing.T) {
		cfg, err := Parse([]byte(`{"team": {"name": "json team"}, "agents": {"a": {"role": "r", "goal": "g"}}}`))
		require.NoError(t, err)
		assert.Equal(t, "json team", cfg.Team.Name)
		assert.Equal(t, "openai/gpt-4o-mini", cfg.Team.LLM)
		assert.Contains(t, cfg.Agents, "a")
	})

	t.Run("should leave agents non-nil", func(t *testing.T) {
		cfg, err := Parse([]byte("agents: ~\n"))
		require.NoError(t, err)
		assert.NotNil(t, cfg.Agents)
	})

	t.Run("should read hooks", func(t *testing.T) {
		cfg, err := Parse([]byte("hooks:\n  - on: workflow_end\n    run: notify-send done\n    timeout: 5\n  - {on: step_end, step: draft, run: 'echo $AGENTFORGE_STEP_ID'}\n"))
		require.NoError(t, err)
		require.Len(t, cfg.Hooks, 2)
		assert.Equal(t, "workflow_end", cfg.Hooks[0].On)
		assert.Equal(t, "notify-send done", cfg.Hooks[0].Run)
		assert.Equal(t, 5*time.Second, cfg.Hooks[0].TimeoutDuration())
		assert.Equal(t, "draft", cfg.Hooks[1].Step)
		assert.Equal(t, time.Duration(0), cfg.Hooks[1].TimeoutDuration())
	})
}

func TestLoaderSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agents.yaml")
	cfg := StarterConfig("Saved Team")

	require.NoError(t, NewLoader(path).Save(cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Saved Team", loaded.Team.Name)
	assert.Equal(t, cfg.AgentNames(), loaded.AgentNames())
	assert.Equal(t, cfg.StepCount(), loaded.StepCount())
}
