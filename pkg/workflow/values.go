package workflow

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// InputKey holds the run input in every ExecutionContext
const InputKey = "input"

// Value is an ExecutionContext entry: a Scalar or a StepRecord.
type Value interface {
	// Text renders the value for templates and truthiness checks.
	Text() string
	value()
}

// Scalar is a plain string value such as the run input or a save_as copy.
type Scalar string

func (s Scalar) Text() string { return string(s) }
func (Scalar) value()         {}

// StepRecord is what a finished step leaves under its id
type StepRecord struct {
	Output  string  `json:"output"`
	Cost    float64 `json:"cost"`
	Tokens  int     `json:"tokens"`
	Success bool    `json:"success"`
}

func (r StepRecord) Text() string { return r.Output }
func (StepRecord) value()         {}

// Field returns one named field of the record rendered as text.
func (r StepRecord) Field(name string) (string, bool) {
	switch name {
	case "output":
		return r.Output, true
	case "cost":
		return strconv.FormatFloat(r.Cost, 'f', -1, 64), true
	case "tokens":
		return strconv.Itoa(r.Tokens), true
	case "success":
		return strconv.FormatBool(r.Success), true
	}
	return "", false
}

// ExecutionContext is the run-scoped key/value store steps read and write.
// Each key has one writer; the mutex only guards the map itself since
// parallel members write concurrently.
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string]Value
}

// NewExecutionContext seeds a context with the run input
func NewExecutionContext(input string) *ExecutionContext {
	return &ExecutionContext{values: map[string]Value{InputKey: Scalar(input)}}
}

// Get returns the value stored under key
func (c *ExecutionContext) Get(key string) (Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores v under key
func (c *ExecutionContext) Set(key string, v Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Lookup walks a dotted path. The first segment names a key; a StepRecord
// accepts one more segment naming a field. Any other shape is unresolved.
func (c *ExecutionContext) Lookup(path string) (string, bool) {
	segments := strings.Split(strings.TrimSpace(path), ".")
	v, ok := c.Get(segments[0])
	if !ok {
		return "", false
	}

	switch len(segments) {
	case 1:
		return v.Text(), true
	case 2:
		if rec, ok := v.(StepRecord); ok {
			return rec.Field(segments[1])
		}
	}
	return "", false
}

// Snapshot returns an independent copy of the context
func (c *ExecutionContext) Snapshot() *ExecutionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := make(map[string]Value, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return &ExecutionContext{values: values}
}

// Keys returns the stored keys, sorted
func (c *ExecutionContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
