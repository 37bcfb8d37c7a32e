package memory

import (
	"context"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bagOfWordsEmbedder hashes words into a small vector so texts sharing words are close.
type bagOfWordsEmbedder struct {
	dim int
}

func (e bagOfWordsEmbedder) Dimension() int { return e.dim }

func (e bagOfWordsEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dim)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%uint32(e.dim)] += 1
		}
		// avoid the zero vector, cosine distance is undefined there
		vec[0] += 0.01
		out[i] = vec
	}
	return out, nil
}

func newTestLongTerm(t *testing.T, shared bool, embedder Embedder) *LongTermStore {
	t.Helper()
	st, err := NewLongTermStore(LongTermConfig{
		Path:     filepath.Join(t.TempDir(), "mem", "memory.db"),
		Shared:   shared,
		Embedder: embedder,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestLongTermStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist and recall with keyword scoring", func(t *testing.T) {
		st := newTestLongTerm(t, true, nil)

		id, err := st.Store(ctx, "researcher", "Task: qubits\nResult: error correction", 0.6, map[string]interface{}{"step": "research"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		_, err = st.Store(ctx, "writer", "unrelated text", 0.2, nil)
		require.NoError(t, err)

		entries, err := st.Recall(ctx, "researcher", "error correction", 5)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, id, entries[0].ID)
		assert.Equal(t, "research", entries[0].Metadata["step"])
		assert.InDelta(t, 1.0+0.6*0.3, entries[0].Score, 1e-9)
		assert.Equal(t, 1, entries[0].AccessCount)
		assert.False(t, entries[0].CreatedAt.IsZero())
	})

	t.Run("should scope recall per agent when not shared", func(t *testing.T) {
		st := newTestLongTerm(t, false, nil)
		_, _ = st.Store(ctx, "a", "alpha fact", 0.5, nil)
		_, _ = st.Store(ctx, "b", "beta fact", 0.5, nil)

		entries, err := st.Recall(ctx, "b", "fact", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "beta fact", entries[0].Content)
	})

	t.Run("should survive reopening", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "memory.db")
		st, err := NewLongTermStore(LongTermConfig{Path: path, Shared: true, Logger: zerolog.Nop()})
		require.NoError(t, err)
		_, err = st.Store(ctx, "a", "persisted", 0.5, nil)
		require.NoError(t, err)
		require.NoError(t, st.Close())

		st, err = NewLongTermStore(LongTermConfig{Path: path, Shared: true, Logger: zerolog.Nop()})
		require.NoError(t, err)
		defer st.Close()

		n, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("should clear one agent or everything", func(t *testing.T) {
		st := newTestLongTerm(t, true, nil)
		_, _ = st.Store(ctx, "a", "alpha", 0.5, nil)
		_, _ = st.Store(ctx, "b", "beta", 0.5, nil)

		require.NoError(t, st.Clear(ctx, "a"))
		n, _ := st.Count(ctx)
		assert.Equal(t, 1, n)

		require.NoError(t, st.Clear(ctx, ""))
		n, _ = st.Count(ctx)
		assert.Equal(t, 0, n)
	})

	t.Run("should forget only old, unimportant, rarely used entries", func(t *testing.T) {
		st := newTestLongTerm(t, true, nil)

		oldLow, _ := st.Store(ctx, "a", "old low", 0.05, nil)
		oldHigh, _ := st.Store(ctx, "a", "old high", 0.9, nil)
		newLow, _ := st.Store(ctx, "a", "new low", 0.05, nil)
		oldLowPopular, _ := st.Store(ctx, "a", "old low popular", 0.05, nil)

		old := time.Now().UTC().Add(-60 * 24 * time.Hour).Format(timeLayout)
		for _, id := range []string{oldLow, oldHigh, oldLowPopular} {
			_, err := st.db.Exec(`UPDATE memories SET created_at = ? WHERE id = ?`, old, id)
			require.NoError(t, err)
		}
		_, err := st.db.Exec(`UPDATE memories SET access_count = 5 WHERE id = ?`, oldLowPopular)
		require.NoError(t, err)

		n, err := st.Forget(ctx, 0.1, 30*24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		var remaining []string
		rows, err := st.db.Query(`SELECT id FROM memories`)
		require.NoError(t, err)
		for rows.Next() {
			var id string
			require.NoError(t, rows.Scan(&id))
			remaining = append(remaining, id)
		}
		rows.Close()
		assert.ElementsMatch(t, []string{oldHigh, newLow, oldLowPopular}, remaining)
	})
}

func TestLongTermStore_Vector(t *testing.T) {
	ctx := context.Background()
	st := newTestLongTerm(t, true, bagOfWordsEmbedder{dim: 32})

	_, err := st.Store(ctx, "a", "golang channels and goroutines", 0.5, nil)
	require.NoError(t, err)
	_, err = st.Store(ctx, "a", "sourdough bread baking", 0.5, nil)
	require.NoError(t, err)

	entries, err := st.Recall(ctx, "a", "goroutines channels", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "golang channels and goroutines", entries[0].Content)

	require.NoError(t, st.Clear(ctx, "a"))
	entries, err = st.Recall(ctx, "a", "goroutines", 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpen(t *testing.T) {
	t.Run("should open each backend", func(t *testing.T) {
		st, err := Open(Config{Backend: BackendMemory, Shared: true})
		require.NoError(t, err)
		assert.IsType(t, &ShortTermStore{}, st.(*instrumented).Unwrap())

		st, err = Open(Config{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "m.db")})
		require.NoError(t, err)
		defer st.Close()
		assert.IsType(t, &LongTermStore{}, st.(*instrumented).Unwrap())
	})

	t.Run("should require an embedder for the vector backend", func(t *testing.T) {
		_, err := Open(Config{Backend: BackendVector, Path: filepath.Join(t.TempDir(), "m.db")})
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})

	t.Run("should reject unknown backends", func(t *testing.T) {
		_, err := Open(Config{Backend: "chroma"})
		assert.Error(t, err)
	})

	t.Run("should trace and count operations through the wrapper", func(t *testing.T) {
		st, err := Open(Config{Backend: BackendMemory, Shared: true})
		require.NoError(t, err)

		ctx := context.Background()
		_, err = st.Store(ctx, "a", "hello world", 0.5, nil)
		require.NoError(t, err)
		entries, err := st.Recall(ctx, "a", "hello", 3)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		require.NoError(t, st.Clear(ctx, ""))
	})
}
