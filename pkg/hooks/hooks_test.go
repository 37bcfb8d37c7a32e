package hooks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/harun/agentforge/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestNewManager(t *testing.T) {
	t.Run("should reject an unknown event kind", func(t *testing.T) {
		_, err := NewManager([]Hook{{On: "daemon:startup", Command: "true"}}, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown event kind "daemon:startup"`)
	})

	t.Run("should require a command", func(t *testing.T) {
		_, err := NewManager([]Hook{{On: events.KindWorkflowEnd, Command: "  "}}, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "command is required for workflow_end")
	})

	t.Run("should build from config", func(t *testing.T) {
		m, err := FromConfig([]config.HookConfig{
			{On: "workflow_end", Run: "true"},
			{On: " step_end ", Run: "true", Step: "draft", Timeout: 2},
		}, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, 2, m.Len())
		assert.Equal(t, 2*time.Second, m.byKind[events.KindStepEnd][0].Timeout)
		assert.Equal(t, DefaultTimeout, m.byKind[events.KindWorkflowEnd][0].Timeout)
	})

	t.Run("should count zero hooks on a nil manager", func(t *testing.T) {
		var m *Manager
		assert.Equal(t, 0, m.Len())
		m.Wait()
	})
}

func TestSubscriber(t *testing.T) {
	t.Run("should pass the event through the environment", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "env.txt")
		m, err := NewManager([]Hook{{
			On:      events.KindStepEnd,
			Command: `echo "$AGENTFORGE_EVENT:$AGENTFORGE_RUN_ID:$AGENTFORGE_STEP_ID:$AGENTFORGE_AGENT:$AGENTFORGE_DATA_SUCCESS" > ` + out,
		}}, zerolog.Nop())
		require.NoError(t, err)

		ctx := tracing.WithRunID(context.Background(), "run-1")
		m.Subscriber(ctx)(events.Event{
			Kind:      events.KindStepEnd,
			StepID:    "draft",
			AgentName: "writer",
			Data:      map[string]interface{}{"success": true},
		})
		m.Wait()

		assert.Equal(t, "step_end:run-1:draft:writer:true\n", readFile(t, out))
	})

	t.Run("should write the event to stdin", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "event.json")
		m, err := NewManager([]Hook{{On: events.KindWorkflowEnd, Command: "cat > " + out}}, zerolog.Nop())
		require.NoError(t, err)

		m.Subscriber(context.Background())(events.Event{
			Seq:  7,
			Kind: events.KindWorkflowEnd,
			Cost: 0.25,
		})
		m.Wait()

		var got events.Event
		require.NoError(t, json.Unmarshal([]byte(readFile(t, out)), &got))
		assert.Equal(t, int64(7), got.Seq)
		assert.Equal(t, events.KindWorkflowEnd, got.Kind)
		assert.InDelta(t, 0.25, got.Cost, 1e-9)
	})

	t.Run("should only fire for the configured step", func(t *testing.T) {
		dir := t.TempDir()
		m, err := NewManager([]Hook{{
			On:      events.KindStepStart,
			Step:    "review",
			Command: `touch "` + dir + `/$AGENTFORGE_STEP_ID"`,
		}}, zerolog.Nop())
		require.NoError(t, err)

		sub := m.Subscriber(context.Background())
		sub(events.Event{Kind: events.KindStepStart, StepID: "draft"})
		sub(events.Event{Kind: events.KindStepStart, StepID: "review"})
		sub(events.Event{Kind: events.KindStepEnd, StepID: "review"})
		m.Wait()

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "review", entries[0].Name())
	})
}

func TestExec(t *testing.T) {
	m, err := NewManager(nil, zerolog.Nop())
	require.NoError(t, err)

	t.Run("should report output of a failing command", func(t *testing.T) {
		err := m.Exec(context.Background(), Hook{On: events.KindError, Command: "echo broken >&2; exit 3"}, "", events.Event{Kind: events.KindError})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hook on error failed")
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("should stop a command at its timeout", func(t *testing.T) {
		start := time.Now()
		err := m.Exec(context.Background(), Hook{On: events.KindRetry, Command: "sleep 5", Timeout: 50 * time.Millisecond}, "", events.Event{Kind: events.KindRetry})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
		assert.Less(t, time.Since(start), 4*time.Second)
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "TOTAL_COST", envKey("total_cost"))
	assert.Equal(t, "RUN_ID", envKey("run-id"))
	assert.Equal(t, "UNKNOWN", envKey(" "))
	assert.Equal(t, `["a","b"]`, envValue([]string{"a", "b"}))
	assert.Equal(t, "", envValue(nil))
	assert.Equal(t, "3", envValue(3))
}
