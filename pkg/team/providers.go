package team

import (
	"os"

	"github.com/harun/agentforge/pkg/llm"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	groqBaseURL          = "https://api.groq.com/openai/v1"
)

// MockResponseEnv, when set, registers an offline "mock" provider that answers
// every request with its value.
const MockResponseEnv = "AGENTFORGE_MOCK_RESPONSE"

// ProvidersFromEnv builds the model providers whose credentials are present in
// the environment. Ollama needs none and is always available.
func ProvidersFromEnv() map[string]llm.Provider {
	providers := map[string]llm.Provider{}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers["openai"] = llm.NewOpenAICompatibleProvider("openai", key, os.Getenv("OPENAI_BASE_URL"))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers["anthropic"] = llm.NewAnthropicProvider(key)
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		providers["groq"] = llm.NewOpenAICompatibleProvider("groq", key, groqBaseURL)
	}

	ollamaURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaURL == "" {
		ollamaURL = defaultOllamaBaseURL
	}
	providers["ollama"] = llm.NewOpenAICompatibleProvider("ollama", "ollama", ollamaURL)

	if reply, ok := os.LookupEnv(MockResponseEnv); ok {
		providers["mock"] = llm.NewMockProvider(llm.MockTurn{Content: reply})
	}

	return providers
}
