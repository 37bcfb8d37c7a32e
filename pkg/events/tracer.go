package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tracer records events in emission order and fans them out to subscribers.
type Tracer struct {
	logger zerolog.Logger

	// held across append+notify so subscribers observe the recorded order
	dispatchMu sync.Mutex

	mu          sync.RWMutex
	events      []Event
	startTime   time.Time
	nextSeq     int64
	subscribers map[int]func(Event)
	nextSubID   int
}

// TracerOption configures a Tracer
type TracerOption func(*Tracer)

// WithLogger sets the logger used for subscriber failures
func WithLogger(logger zerolog.Logger) TracerOption {
	return func(t *Tracer) {
		t.logger = logger
	}
}

// NewTracer creates an empty Tracer
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		logger:      zerolog.Nop(),
		subscribers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start marks the beginning of the traced run
func (t *Tracer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

// StartTime returns when Start was called
func (t *Tracer) StartTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startTime
}

// Elapsed returns the time since Start, or zero before it
func (t *Tracer) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.startTime.IsZero() {
		return 0
	}
	return time.Since(t.startTime)
}

// Emit records e, assigning its sequence number and timestamp, then notifies
// subscribers. Subscribers must not call Emit.
func (t *Tracer) Emit(e Event) {
	t.dispatchMu.Lock()
	defer t.dispatchMu.Unlock()

	t.mu.Lock()
	t.nextSeq++
	e.Seq = t.nextSeq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	t.events = append(t.events, e)
	subs := make([]func(Event), 0, len(t.subscribers))
	for id := 0; id < t.nextSubID; id++ {
		if fn, ok := t.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range subs {
		t.notify(fn, e)
	}
}

func (t *Tracer) notify(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().
				Interface("panic", r).
				Str("kind", string(e.Kind)).
				Msg("Event subscriber panicked")
		}
	}()
	fn(e)
}

// Subscribe registers fn for every future event and returns a function that
// removes it. Subscribers run synchronously in subscription order.
func (t *Tracer) Subscribe(fn func(Event)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

// Timeline returns a copy of the recorded events
func (t *Tracer) Timeline() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Event(nil), t.events...)
}

// Len returns the number of recorded events
func (t *Tracer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// CostBreakdown aggregates the recorded model responses
func (t *Tracer) CostBreakdown() CostBreakdown {
	return BreakdownOf(t.Timeline())
}

// Trace is the exported form of a run
type Trace struct {
	StartTime     time.Time     `json:"start_time"`
	Duration      float64       `json:"duration"`
	Events        []Event       `json:"events"`
	CostBreakdown CostBreakdown `json:"cost_breakdown"`
}

// Export returns the trace document
func (t *Tracer) Export() Trace {
	events := t.Timeline()
	return Trace{
		StartTime:     t.StartTime(),
		Duration:      t.Elapsed().Seconds(),
		Events:        events,
		CostBreakdown: BreakdownOf(events),
	}
}

// ExportJSON writes the trace document to path, creating parent directories.
func (t *Tracer) ExportJSON(path string) error {
	data, err := json.MarshalIndent(t.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create trace directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

// LoadTrace reads a document written by ExportJSON
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tr Trace
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("invalid trace file %s: %w", path, err)
	}
	return &tr, nil
}

// LogSubscriber logs each event at debug level
func LogSubscriber(logger zerolog.Logger) func(Event) {
	return func(e Event) {
		ev := logger.Debug().
			Int64("seq", e.Seq).
			Str("kind", string(e.Kind))
		if e.StepID != "" {
			ev = ev.Str("step_id", e.StepID)
		}
		if e.AgentName != "" {
			ev = ev.Str("agent", e.AgentName)
		}
		if e.Cost > 0 {
			ev = ev.Float64("cost", e.Cost)
		}
		if len(e.Data) > 0 {
			ev = ev.Interface("data", e.Data)
		}
		ev.Msg("Event")
	}
}
