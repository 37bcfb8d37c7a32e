package control

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   float64
	}{
		{name: "medium confident answer", output: words(50), want: 0.7},
		{name: "short answer", output: "Paris.", want: 0.6},
		{name: "long answer", output: words(250), want: 0.8},
		{name: "one hedge", output: "Maybe " + words(50), want: 0.6},
		{name: "several hedges", output: "I think it seems possibly unclear " + words(50), want: 0.3},
		{name: "phrase counted once", output: "maybe maybe maybe " + words(50), want: 0.6},
		{name: "clamped at zero", output: "i'm not sure i don't know uncertain not confident possibly maybe might be hard to say unclear perhaps", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.output), 1e-9)
		})
	}
}

func TestConfidenceChecker_ShouldPause(t *testing.T) {
	t.Run("should pause below threshold", func(t *testing.T) {
		c := NewConfidenceChecker(0.5)
		assert.True(t, c.ShouldPause("I'm not sure, maybe."))
		assert.False(t, c.ShouldPause(words(50)))
	})

	t.Run("should never pause with a zero threshold", func(t *testing.T) {
		c := NewConfidenceChecker(0)
		assert.False(t, c.ShouldPause("i don't know"))
	})

	t.Run("should default negative thresholds", func(t *testing.T) {
		c := NewConfidenceChecker(-1)
		assert.Equal(t, DefaultConfidenceThreshold, c.Threshold)
	})
}
