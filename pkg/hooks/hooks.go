// Package hooks runs shell commands in response to run events.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/harun/agentforge/pkg/events"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a hook without its own timeout.
const DefaultTimeout = 30 * time.Second

// Hook runs Command through /bin/sh for every event of kind On. A non-empty
// Step narrows it to events of that step.
type Hook struct {
	On      events.Kind
	Command string
	Step    string
	Timeout time.Duration
}

// Manager dispatches events to the matching hooks.
type Manager struct {
	logger zerolog.Logger
	byKind map[events.Kind][]Hook
	wg     sync.WaitGroup
}

// NewManager checks and indexes hooks.
func NewManager(hooks []Hook, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		logger: logger.With().Str("component", "hooks").Logger(),
		byKind: make(map[events.Kind][]Hook),
	}
	for i, h := range hooks {
		if !h.On.Known() {
			return nil, fmt.Errorf("hook %d: unknown event kind %q", i, h.On)
		}
		if strings.TrimSpace(h.Command) == "" {
			return nil, fmt.Errorf("hook %d: command is required for %s", i, h.On)
		}
		if h.Timeout <= 0 {
			h.Timeout = DefaultTimeout
		}
		m.byKind[h.On] = append(m.byKind[h.On], h)
	}
	return m, nil
}

// FromConfig builds a manager from the hooks section of agents.yaml.
func FromConfig(cfgs []config.HookConfig, logger zerolog.Logger) (*Manager, error) {
	hooks := make([]Hook, 0, len(cfgs))
	for _, c := range cfgs {
		hooks = append(hooks, Hook{
			On:      events.Kind(strings.TrimSpace(c.On)),
			Command: c.Run,
			Step:    c.Step,
			Timeout: c.TimeoutDuration(),
		})
	}
	return NewManager(hooks, logger)
}

// Len returns the number of hooks
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, hs := range m.byKind {
		n += len(hs)
	}
	return n
}

// Subscriber returns an event subscriber for the run carried by ctx. Hooks
// start in the background; Wait blocks until they finish. Cancelling ctx
// kills the ones still running.
func (m *Manager) Subscriber(ctx context.Context) func(events.Event) {
	runID := tracing.GetRunID(ctx)
	return func(e events.Event) {
		for _, h := range m.byKind[e.Kind] {
			if h.Step != "" && h.Step != e.StepID {
				continue
			}
			m.wg.Add(1)
			go func(h Hook) {
				defer m.wg.Done()
				if err := m.Exec(ctx, h, runID, e); err != nil {
					m.logger.Warn().Err(err).
						Str("run_id", runID).
						Str("event", string(e.Kind)).
						Msg("Hook failed")
				}
			}(h)
		}
	}
}

// Wait blocks until every started hook has returned.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.wg.Wait()
}

// Exec runs h for e and waits for it. The event is written to the command's
// stdin as JSON.
func (m *Manager) Exec(ctx context.Context, h Hook, runID string, e events.Event) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", h.Command)
	cmd.Env = environ(runID, e)
	cmd.Stdin = bytes.NewReader(payload)
	// children of the shell can hold the output pipe open after a kill
	cmd.WaitDelay = time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("hook on %s timed out after %s", h.On, timeout)
		}
		if out != "" {
			return fmt.Errorf("hook on %s failed: %w: %s", h.On, err, out)
		}
		return fmt.Errorf("hook on %s failed: %w", h.On, err)
	}

	m.logger.Debug().
		Str("event", string(h.On)).
		Str("step_id", e.StepID).
		Dur("duration", time.Since(start)).
		Str("output", out).
		Msg("Hook executed")
	return nil
}

func environ(runID string, e events.Event) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env,
		"AGENTFORGE_EVENT="+string(e.Kind),
		"AGENTFORGE_RUN_ID="+runID,
		"AGENTFORGE_STEP_ID="+e.StepID,
		"AGENTFORGE_AGENT="+e.AgentName,
	)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, "AGENTFORGE_DATA_"+envKey(k)+"="+envValue(e.Data[k]))
	}
	return env
}

func envValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	case map[string]interface{}, []interface{}, []string:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func envKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "UNKNOWN"
	}
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
