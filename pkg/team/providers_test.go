package team

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvidersFromEnv(t *testing.T) {
	t.Run("should only register providers with credentials", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("GROQ_API_KEY", "")

		providers := ProvidersFromEnv()
		assert.Contains(t, providers, "ollama")
		assert.NotContains(t, providers, "openai")
		assert.NotContains(t, providers, "anthropic")
		assert.NotContains(t, providers, "groq")
	})

	t.Run("should register keyed providers", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
		t.Setenv("GROQ_API_KEY", "gsk-test")

		providers := ProvidersFromEnv()
		assert.Contains(t, providers, "openai")
		assert.Contains(t, providers, "anthropic")
		assert.Contains(t, providers, "groq")
	})

	t.Run("should register the offline mock on request", func(t *testing.T) {
		t.Setenv(MockResponseEnv, "canned")

		providers := ProvidersFromEnv()
		require.Contains(t, providers, "mock")
		assert.Equal(t, "mock", providers["mock"].Provider())
	})
}
