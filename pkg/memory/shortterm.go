package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxItems is the window size of ShortTermStore
const DefaultMaxItems = 100

// ShortTermStore keeps the most recent entries of one process in memory.
// Once full, the oldest entry is dropped for every new one.
type ShortTermStore struct {
	maxItems int
	shared   bool

	mu      sync.Mutex
	entries []Entry
}

// NewShortTermStore creates an in-process store holding at most maxItems entries.
func NewShortTermStore(maxItems int, shared bool) *ShortTermStore {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &ShortTermStore{maxItems: maxItems, shared: shared}
}

func (s *ShortTermStore) Store(ctx context.Context, agentName, content string, importance float64, metadata map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{
		ID:         id,
		AgentName:  agentName,
		Content:    content,
		Importance: normalizeImportance(importance),
		CreatedAt:  now,
		Metadata:   metadata,
	})
	if over := len(s.entries) - s.maxItems; over > 0 {
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}

	return id, nil
}

func (s *ShortTermStore) Recall(ctx context.Context, agentName, query string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Entry{}, nil
	}

	words := queryWordSet(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	scored := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !s.shared && e.AgentName != agentName {
			continue
		}
		e.Score = keywordScore(words, e.Content, e.Importance)
		scored = append(scored, e)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	return scored, nil
}

func (s *ShortTermStore) Clear(ctx context.Context, agentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agentName == "" {
		s.entries = nil
		return nil
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.AgentName != agentName {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// Len returns the number of entries held
func (s *ShortTermStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *ShortTermStore) Close() error { return nil }
