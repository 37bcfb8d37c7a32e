package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000Z"

// LongTermConfig configures a LongTermStore
type LongTermConfig struct {
	// Path is the sqlite file. ":memory:" keeps everything in process.
	Path   string
	Shared bool
	// Embedder enables semantic recall through a sqlite-vec index.
	Embedder Embedder
	Logger   zerolog.Logger
}

// LongTermStore persists memories in sqlite. Recall uses the vector index when
// an embedder is configured and falls back to keyword scoring otherwise.
type LongTermStore struct {
	db       *sql.DB
	shared   bool
	embedder Embedder
	logger   zerolog.Logger

	// serialises read-score-update sequences in Recall
	mu sync.Mutex
}

// NewLongTermStore opens (creating if needed) the sqlite database at cfg.Path.
func NewLongTermStore(cfg LongTermConfig) (*LongTermStore, error) {
	path := cfg.Path
	if path == "" {
		path = ".agentforge/memory.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &LongTermStore{
		db:       db,
		shared:   cfg.Shared,
		embedder: cfg.Embedder,
		logger:   cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", path).Bool("vector", cfg.Embedder != nil).Msg("Long-term memory opened")
	return s, nil
}

func (s *LongTermStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL DEFAULT 0.5,
			created_at TEXT NOT NULL,
			accessed_at TEXT,
			access_count INTEGER DEFAULT 0,
			metadata TEXT DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_name);
		CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.embedder != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
				memory_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.embedder.Dimension())
		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

func (s *LongTermStore) Store(ctx context.Context, agentName, content string, importance float64, metadata map[string]interface{}) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(timeLayout)

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, agent_name, content, importance, created_at, accessed_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, agentName, content, normalizeImportance(importance), now, now, string(metaJSON))
	if err != nil {
		return "", fmt.Errorf("failed to store memory: %w", err)
	}

	if s.embedder != nil {
		// the row is already stored; keyword recall still finds it if embedding fails
		if err := s.index(ctx, id, content); err != nil {
			s.logger.Warn().Err(err).Str("memory_id", id).Msg("Failed to index memory embedding")
		}
	}

	return id, nil
}

func (s *LongTermStore) index(ctx context.Context, id, content string) error {
	vecs, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return err
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	embeddingJSON, err := json.Marshal(vecs[0])
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_vectors (memory_id, embedding) VALUES (?, ?)`,
		id, string(embeddingJSON))
	return err
}

func (s *LongTermStore) Recall(ctx context.Context, agentName, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		entries []Entry
		err     error
	)
	if s.embedder != nil {
		entries, err = s.vectorRecall(ctx, agentName, query, limit)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Vector recall failed, using keyword recall")
			entries = nil
		}
	}
	if len(entries) == 0 {
		entries, err = s.keywordRecall(ctx, agentName, query, limit)
		if err != nil {
			return nil, err
		}
	}

	if err := s.touch(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

const selectColumns = `m.id, m.agent_name, m.content, m.importance, m.created_at, m.accessed_at, m.access_count, m.metadata`

func (s *LongTermStore) keywordRecall(ctx context.Context, agentName, query string, limit int) ([]Entry, error) {
	q := `SELECT ` + selectColumns + ` FROM memories m`
	args := []interface{}{}
	if !s.shared {
		q += ` WHERE m.agent_name = ?`
		args = append(args, agentName)
	}
	q += ` ORDER BY m.importance DESC, m.created_at DESC LIMIT ?`
	args = append(args, limit*3)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	words := queryWordSet(query)
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		e.Score = keywordScore(words, e.Content, e.Importance)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *LongTermStore) vectorRecall(ctx context.Context, agentName, query string, limit int) ([]Entry, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	embeddingJSON, err := json.Marshal(vecs[0])
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + selectColumns + `, vec_distance_cosine(v.embedding, ?) AS distance
		FROM memory_vectors v JOIN memories m ON m.id = v.memory_id`
	args := []interface{}{string(embeddingJSON)}
	if !s.shared {
		q += ` WHERE m.agent_name = ?`
		args = append(args, agentName)
	}
	q += ` ORDER BY distance ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var distance float64
		e, err := scanEntry(rows, &distance)
		if err != nil {
			return nil, err
		}
		e.Score = 1.0 - distance
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(rows rowScanner, extra ...interface{}) (Entry, error) {
	var (
		e                   Entry
		createdAt, metaJSON string
		accessedAt          sql.NullString
	)
	dest := append([]interface{}{
		&e.ID, &e.AgentName, &e.Content, &e.Importance,
		&createdAt, &accessedAt, &e.AccessCount, &metaJSON,
	}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return Entry{}, fmt.Errorf("failed to scan memory: %w", err)
	}

	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if accessedAt.Valid {
		e.AccessedAt, _ = time.Parse(timeLayout, accessedAt.String)
	}
	if metaJSON != "" && metaJSON != "{}" {
		_ = json.Unmarshal([]byte(metaJSON), &e.Metadata)
	}
	return e, nil
}

// touch records an access on every recalled entry.
func (s *LongTermStore) touch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	nowText := now.Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i := range entries {
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET accessed_at = ?, access_count = access_count + 1 WHERE id = ?`,
			nowText, entries[i].ID); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to update access stats: %w", err)
		}
		entries[i].AccessedAt = now
		entries[i].AccessCount++
	}
	return tx.Commit()
}

// Forget deletes entries that are unimportant, old and rarely recalled:
// importance below minImportance, older than maxAge and recalled fewer than 3 times.
// It returns the number of deleted entries.
func (s *LongTermStore) Forget(ctx context.Context, minImportance float64, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeLayout)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM memories WHERE importance < ? AND created_at < ? AND access_count < 3`,
		minImportance, cutoff)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return 0, err
	}
	if s.embedder != nil {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_vectors WHERE memory_id IN (`+placeholders+`)`, args...); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to delete forgotten embeddings")
		}
	}

	s.logger.Debug().Int("count", len(ids)).Msg("Forgot memories")
	return len(ids), nil
}

func (s *LongTermStore) Clear(ctx context.Context, agentName string) error {
	if agentName == "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
			return err
		}
		if s.embedder != nil {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_vectors`); err != nil {
				return err
			}
		}
		return nil
	}

	if s.embedder != nil {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM memory_vectors WHERE memory_id IN (SELECT id FROM memories WHERE agent_name = ?)`,
			agentName); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE agent_name = ?`, agentName)
	return err
}

// Count returns the number of stored entries
func (s *LongTermStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

func (s *LongTermStore) Close() error {
	return s.db.Close()
}
