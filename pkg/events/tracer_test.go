package events

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer_Emit(t *testing.T) {
	t.Run("should assign increasing sequence numbers and timestamps", func(t *testing.T) {
		tr := NewTracer()
		tr.Emit(Event{Kind: KindWorkflowStart})
		tr.Emit(Event{Kind: KindStepStart, StepID: "s1"})

		events := tr.Timeline()
		require.Len(t, events, 2)
		assert.Equal(t, int64(1), events[0].Seq)
		assert.Equal(t, int64(2), events[1].Seq)
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("should notify subscribers in order and allow unsubscribing", func(t *testing.T) {
		tr := NewTracer()
		var got []Kind
		unsubscribe := tr.Subscribe(func(e Event) { got = append(got, e.Kind) })

		tr.Emit(Event{Kind: KindStepStart})
		tr.Emit(Event{Kind: KindStepEnd})
		unsubscribe()
		tr.Emit(Event{Kind: KindWorkflowEnd})

		assert.Equal(t, []Kind{KindStepStart, KindStepEnd}, got)
		assert.Equal(t, 3, tr.Len())
	})

	t.Run("should survive panicking subscribers", func(t *testing.T) {
		tr := NewTracer()
		var after int
		tr.Subscribe(func(e Event) { panic("bad subscriber") })
		tr.Subscribe(func(e Event) { after++ })

		assert.NotPanics(t, func() { tr.Emit(Event{Kind: KindError}) })
		assert.Equal(t, 1, after)
	})

	t.Run("should be safe for concurrent emitters", func(t *testing.T) {
		tr := NewTracer()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					tr.Emit(Event{Kind: KindToolCall})
				}
			}()
		}
		wg.Wait()

		events := tr.Timeline()
		require.Len(t, events, 1000)
		for i, e := range events {
			assert.Equal(t, int64(i+1), e.Seq)
		}
	})
}

func TestBreakdownOf(t *testing.T) {
	events := []Event{
		{Kind: KindAgentResponse, StepID: "research", AgentName: "researcher", Data: map[string]interface{}{"model": "openai/gpt-4o"}, InputTokens: 100, OutputTokens: 50, Cost: 0.01},
		{Kind: KindAgentResponse, StepID: "research", AgentName: "researcher", Data: map[string]interface{}{"model": "openai/gpt-4o"}, InputTokens: 10, OutputTokens: 5, Cost: 0.001},
		{Kind: KindAgentResponse, StepID: "write", AgentName: "writer", Data: map[string]interface{}{"model": "anthropic/claude-sonnet-4"}, InputTokens: 200, OutputTokens: 100, Cost: 0.02},
		{Kind: KindStepEnd, StepID: "write", AgentName: "writer", InputTokens: 200, OutputTokens: 100, Cost: 0.02},
		{Kind: KindAgentResponse, AgentName: "writer", Data: map[string]interface{}{"confidence_score": 0.3}},
	}

	b := BreakdownOf(events)

	assert.InDelta(t, 0.031, b.TotalCost, 1e-9)
	assert.Equal(t, TokenCount{Input: 310, Output: 155}, b.TotalTokens)
	assert.Equal(t, 2, b.ByAgent["researcher"].Calls)
	assert.Equal(t, 165, b.ByAgent["researcher"].Tokens.Total())
	assert.InDelta(t, 0.02, b.ByModel["anthropic/claude-sonnet-4"].Cost, 1e-9)
	assert.Equal(t, 1, b.ByStep["write"].Calls)
	assert.Len(t, b.ByModel, 2)
}

func TestCostBreakdown_WriteTable(t *testing.T) {
	b := BreakdownOf([]Event{
		{Kind: KindAgentResponse, AgentName: "researcher", Data: map[string]interface{}{"model": "openai/gpt-4o"}, InputTokens: 1000, OutputTokens: 500, Cost: 0.0125},
	})

	var buf bytes.Buffer
	require.NoError(t, b.WriteTable(&buf))

	out := buf.String()
	assert.Contains(t, out, "researcher")
	assert.Contains(t, out, "1500")
	assert.Contains(t, out, "$0.0125")
	assert.Contains(t, out, "openai/gpt-4o")
}

func TestTracer_ExportJSON(t *testing.T) {
	tr := NewTracer()
	tr.Start()
	tr.Emit(Event{Kind: KindWorkflowStart, Data: map[string]interface{}{"task": "hello"}})
	tr.Emit(Event{Kind: KindAgentResponse, AgentName: "a", Data: map[string]interface{}{"model": "m"}, InputTokens: 3, OutputTokens: 4, Cost: 0.5})

	path := filepath.Join(t.TempDir(), "traces", "run.json")
	require.NoError(t, tr.ExportJSON(path))

	loaded, err := LoadTrace(path)
	require.NoError(t, err)
	require.Len(t, loaded.Events, 2)
	assert.Equal(t, KindWorkflowStart, loaded.Events[0].Kind)
	assert.Equal(t, "hello", loaded.Events[0].Data["task"])
	assert.InDelta(t, 0.5, loaded.CostBreakdown.TotalCost, 1e-9)
	assert.Equal(t, 7, loaded.CostBreakdown.TotalTokens.Total())
	assert.False(t, loaded.StartTime.IsZero())
}
