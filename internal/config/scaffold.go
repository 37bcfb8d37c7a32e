package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrExists is returned by WriteStarter when a file would be overwritten
var ErrExists = errors.New("file already exists")

const starterHeader = `# AgentForge team definition.
# Run it with: agentforge run --input "your topic"
`

const envExample = `# Copy to .env and fill in the keys for the providers you use.
OPENAI_API_KEY=
ANTHROPIC_API_KEY=
# OPENAI_BASE_URL=http://localhost:11434/v1
`

const gitignore = `.env
.agentforge/
*.trace.json
`

// StarterConfig returns the two-agent research and write team used by init
func StarterConfig(name string) *Config {
	cfg := DefaultConfig()
	if name != "" {
		cfg.Team.Name = name
	}

	cfg.Agents["researcher"] = AgentConfig{
		Role:      "Research Analyst",
		Goal:      "Find accurate, relevant facts about the topic",
		Backstory: "You dig through sources and keep only what is well supported.",
		Tools:     []string{"http_request", "calculator"},
		Control: AgentControlConfig{
			MaxIterations:  10,
			BlockedActions: []string{"file_write"},
		},
	}
	cfg.Agents["writer"] = AgentConfig{
		Role:      "Technical Writer",
		Goal:      "Turn research notes into a clear report",
		Backstory: "You write short, well structured prose.",
		Tools:     []string{"file_write"},
	}

	cfg.Workflow.Steps = []StepConfig{
		{
			ID:     "research",
			Agent:  "researcher",
			Task:   "Research the following topic and list the key findings: {{input}}",
			SaveAs: "findings",
		},
		{
			ID:           "write",
			Agent:        "writer",
			Task:         "Write a report on {{input}} using these findings:\n{{findings}}",
			OutputFormat: "markdown",
			Condition:    "findings not empty",
		},
	}
	return cfg
}

// WriteStarter writes agents.yaml, .env.example and .gitignore into dir and
// returns the paths written. Existing files are kept unless force is set.
func WriteStarter(dir, teamName string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	body, err := yaml.Marshal(StarterConfig(teamName))
	if err != nil {
		return nil, fmt.Errorf("failed to render starter config: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{DefaultFileName, append([]byte(starterHeader), body...)},
		{".env.example", []byte(envExample)},
		{".gitignore", []byte(gitignore)},
	}

	if !force {
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if _, err := os.Stat(path); err == nil {
				return nil, fmt.Errorf("%w: %s (use --force to overwrite)", ErrExists, path)
			}
		}
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
