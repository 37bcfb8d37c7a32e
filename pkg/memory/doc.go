// Package memory stores and recalls what agents learned in earlier tasks.
//
// Invariants:
// - Every backend implements Store; failures are returned, never panicked, and callers treat them as best-effort.
// - Recall scores entries by the fraction of query words found plus importance*0.3, highest first.
// - A shared store recalls across all agents; otherwise recall only sees the caller's own entries.
//
// Usage:
//
//	st, _ := memory.Open(memory.Config{Backend: memory.BackendSQLite, Path: ".agentforge/memory.db", Shared: true})
//	defer st.Close()
//	_, _ = st.Store(ctx, "researcher", "Task: ...\nResult: ...", 0.6, nil)
//	entries, _ := st.Recall(ctx, "researcher", "quantum error correction", 5)
//	_ = entries
package memory
