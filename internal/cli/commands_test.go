package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/pkg/events"
	"github.com/harun/agentforge/pkg/team"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockConfig = `
team:
  name: CLI Team
  llm: mock/test
  memory: {backend: memory}
  observe: {log_level: error, log_format: json, cost_tracking: true}
agents:
  writer:
    role: Writer
    goal: Write things
workflow:
  steps:
    - id: draft
      agent: writer
      task: "Write about {{input}}"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")

	t.Run("should write the starter files", func(t *testing.T) {
		stdout, _, err := executeCommand(t, context.Background(), "init", dir, "--name", "Docs Team")
		require.NoError(t, err)

		assert.Contains(t, stdout, "created")
		assert.Contains(t, stdout, "Next steps")
		for _, name := range []string{config.DefaultFileName, ".env.example", ".gitignore"} {
			assert.FileExists(t, filepath.Join(dir, name))
		}

		cfg, err := config.Load(filepath.Join(dir, config.DefaultFileName))
		require.NoError(t, err)
		assert.Equal(t, "Docs Team", cfg.Team.Name)
	})

	t.Run("should refuse to overwrite without force", func(t *testing.T) {
		_, _, err := executeCommand(t, context.Background(), "init", dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrExists)

		_, _, err = executeCommand(t, context.Background(), "init", dir, "--force")
		assert.NoError(t, err)
	})

	t.Run("should produce a config that validates", func(t *testing.T) {
		stdout, _, err := executeCommand(t, context.Background(), "validate", "--config", filepath.Join(dir, config.DefaultFileName))
		require.NoError(t, err)
		assert.Contains(t, stdout, "is valid (2 agents, 2 steps)")
	})
}

func TestValidateCommand(t *testing.T) {
	t.Run("should report every problem", func(t *testing.T) {
		path := writeFile(t, "agents.yaml", `
team: {llm: gpt-4o}
agents:
  writer: {role: Writer, goal: Write, tools: [teleport]}
workflow:
  steps:
    - {id: draft, agent: ghost, task: "x"}
`)
		stdout, _, err := executeCommand(t, context.Background(), "validate", "--config", path)
		require.Error(t, err)

		assert.Contains(t, stdout, "✗")
		assert.Contains(t, stdout, "team.llm")
		assert.Contains(t, stdout, "unknown tool 'teleport'")
		assert.Contains(t, stdout, "ghost")
	})

	t.Run("should print warnings for dangling branch targets", func(t *testing.T) {
		path := writeFile(t, "agents.yaml", `
team: {llm: mock/test}
agents:
  writer: {role: Writer, goal: Write}
workflow:
  steps:
    - {id: draft, agent: writer, task: "x", on_fail: nowhere}
`)
		stdout, _, err := executeCommand(t, context.Background(), "validate", "--config", path)
		require.NoError(t, err)

		assert.Contains(t, stdout, "⚠")
		assert.Contains(t, stdout, "nowhere")
		assert.Contains(t, stdout, "is valid (1 agents, 1 steps)")
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, _, err := executeCommand(t, context.Background(), "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrNotFound)
	})

	t.Run("should watch until the context ends", func(t *testing.T) {
		path := writeFile(t, "agents.yaml", mockConfig)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		stdout, _, err := executeCommand(t, ctx, "validate", "--watch", "--config", path)
		require.NoError(t, err)

		assert.Contains(t, stdout, "is valid (1 agents, 1 steps)")
		assert.Contains(t, stdout, "Watching "+path)
	})
}

func TestCostCommand(t *testing.T) {
	tracer := events.NewTracer()
	tracer.Start()
	tracer.Emit(events.Event{
		Kind:         events.KindAgentResponse,
		StepID:       "research",
		AgentName:    "researcher",
		Data:         map[string]interface{}{"model": "openai/gpt-4o-mini"},
		InputTokens:  100,
		OutputTokens: 50,
		Cost:         0.0125,
	})
	tracer.Emit(events.Event{
		Kind:         events.KindAgentResponse,
		StepID:       "write",
		AgentName:    "writer",
		Data:         map[string]interface{}{"model": "openai/gpt-4o-mini"},
		InputTokens:  10,
		OutputTokens: 5,
		Cost:         0.0025,
	})
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, tracer.ExportJSON(path))

	t.Run("should print a table", func(t *testing.T) {
		stdout, _, err := executeCommand(t, context.Background(), "cost", path)
		require.NoError(t, err)

		assert.Contains(t, stdout, "2 events")
		assert.Contains(t, stdout, "researcher")
		assert.Contains(t, stdout, "writer")
		assert.Contains(t, stdout, "openai/gpt-4o-mini")
		assert.Contains(t, stdout, "$0.0150")
	})

	t.Run("should print JSON", func(t *testing.T) {
		stdout, _, err := executeCommand(t, context.Background(), "cost", path, "--json")
		require.NoError(t, err)

		var breakdown events.CostBreakdown
		require.NoError(t, json.Unmarshal([]byte(stdout), &breakdown))
		assert.InDelta(t, 0.015, breakdown.TotalCost, 1e-9)
		assert.Equal(t, 165, breakdown.TotalTokens.Total())
		assert.Equal(t, 2, breakdown.ByModel["openai/gpt-4o-mini"].Calls)
	})

	t.Run("should require a readable trace", func(t *testing.T) {
		_, _, err := executeCommand(t, context.Background(), "cost", filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)

		_, _, err = executeCommand(t, context.Background(), "cost")
		assert.Error(t, err)
	})
}

func TestRunCommand(t *testing.T) {
	t.Setenv(team.MockResponseEnv, "A short mock article.")
	path := writeFile(t, "agents.yaml", mockConfig)

	t.Run("should print the final output", func(t *testing.T) {
		stdout, stderr, err := executeCommand(t, context.Background(), "run", "--config", path, "golang")
		require.NoError(t, err)

		assert.Equal(t, "A short mock article.\n", stdout)
		assert.Contains(t, stderr, "✓ draft (writer)")
		assert.Contains(t, stderr, "Total")
	})

	t.Run("should accept --input and print JSON", func(t *testing.T) {
		stdout, _, err := executeCommand(t, context.Background(), "run", "--config", path, "--input", "golang", "--json")
		require.NoError(t, err)

		var res map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(stdout), &res))
		assert.Equal(t, true, res["success"])
		assert.Equal(t, "A short mock article.", res["output"])
		assert.NotEmpty(t, res["run_id"])
	})

	t.Run("should mark dry runs", func(t *testing.T) {
		_, stderr, err := executeCommand(t, context.Background(), "run", "--config", path, "--dry-run", "golang")
		require.NoError(t, err)
		assert.Contains(t, stderr, "[dry run]")
	})

	t.Run("should require an input", func(t *testing.T) {
		_, _, err := executeCommand(t, context.Background(), "run", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input is required")
	})

	t.Run("should reject an unknown approval mode", func(t *testing.T) {
		_, _, err := executeCommand(t, context.Background(), "run", "--config", path, "--approve", "maybe", "golang")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --approve")
	})

	t.Run("should fail when the model is unavailable", func(t *testing.T) {
		broken := writeFile(t, "agents.yaml", `
team: {llm: nowhere/model, memory: {backend: memory}, observe: {log_level: error}, control: {max_retries: 0}}
agents:
  writer: {role: Writer, goal: Write}
workflow:
  steps:
    - {id: draft, agent: writer, task: "{{input}}"}
`)
		_, stderr, err := executeCommand(t, context.Background(), "run", "--config", broken, "golang")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run failed")
		assert.Contains(t, stderr, "✗ draft (writer)")
	})
}

func TestDashboardCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	var stdout string
	var err error
	go func() {
		defer close(done)
		stdout, _, err = executeCommand(t, ctx, "dashboard", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--port", "0")
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("dashboard did not shut down")
	}
	require.NoError(t, err)
	assert.Contains(t, stdout, "Dashboard listening on http://127.0.0.1:")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h0m1s", formatDuration(time.Hour+time.Second))
}
