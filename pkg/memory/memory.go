package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendVector = "vector"
)

// DefaultImportance is used when a caller passes a non-positive importance.
const DefaultImportance = 0.5

// ErrEmbedderRequired is returned when the vector backend has no embedder.
var ErrEmbedderRequired = errors.New("vector backend requires an embedder")

// Entry is one recalled memory
type Entry struct {
	ID          string                 `json:"id"`
	AgentName   string                 `json:"agent_name"`
	Content     string                 `json:"content"`
	Importance  float64                `json:"importance"`
	CreatedAt   time.Time              `json:"created_at"`
	AccessedAt  time.Time              `json:"accessed_at,omitempty"`
	AccessCount int                    `json:"access_count,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Score       float64                `json:"score"`
}

// Store is the memory contract used by agents.
type Store interface {
	Store(ctx context.Context, agentName, content string, importance float64, metadata map[string]interface{}) (string, error)
	Recall(ctx context.Context, agentName, query string, limit int) ([]Entry, error)
	// Clear removes the entries of agentName, or every entry when agentName is empty.
	Clear(ctx context.Context, agentName string) error
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Backend string
	Path    string
	Shared  bool
	// MaxItems bounds the in-process window (memory backend only).
	MaxItems int
	Embedder Embedder
	Logger   zerolog.Logger
}

// Open builds the Store for cfg.Backend. An empty backend means sqlite.
func Open(cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)

	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		st = NewShortTermStore(cfg.MaxItems, cfg.Shared)
	case "", BackendSQLite:
		st, err = NewLongTermStore(LongTermConfig{Path: cfg.Path, Shared: cfg.Shared, Logger: cfg.Logger})
	case BackendVector:
		if cfg.Embedder == nil {
			return nil, ErrEmbedderRequired
		}
		st, err = NewLongTermStore(LongTermConfig{
			Path:     cfg.Path,
			Shared:   cfg.Shared,
			Embedder: cfg.Embedder,
			Logger:   cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(st), nil
}

// keywordScore is the fraction of distinct query words found in content plus an importance bonus.
func keywordScore(queryWords map[string]struct{}, content string, importance float64) float64 {
	lower := strings.ToLower(content)
	matches := 0
	for w := range queryWords {
		if strings.Contains(lower, w) {
			matches++
		}
	}
	n := len(queryWords)
	if n == 0 {
		n = 1
	}
	return float64(matches)/float64(n) + importance*0.3
}

func queryWordSet(query string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(query))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func normalizeImportance(importance float64) float64 {
	if importance <= 0 {
		return DefaultImportance
	}
	if importance > 1 {
		return 1
	}
	return importance
}
