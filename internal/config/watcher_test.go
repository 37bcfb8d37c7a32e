package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	t.Run("should signal when the file changes", func(t *testing.T) {
		path := writeConfig(t, sampleYAML)
		w, err := NewWatcher(path, zerolog.Nop())
		require.NoError(t, err)
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"\n# edited\n"), 0644))

		select {
		case _, ok := <-changes:
			assert.True(t, ok)
		case <-time.After(3 * time.Second):
			t.Fatal("expected a change notification")
		}
	})

	t.Run("should ignore other files in the directory", func(t *testing.T) {
		path := writeConfig(t, sampleYAML)
		w, err := NewWatcher(path, zerolog.Nop())
		require.NoError(t, err)
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		other := filepath.Join(filepath.Dir(path), "notes.txt")
		require.NoError(t, os.WriteFile(other, []byte("hello"), 0644))

		select {
		case <-changes:
			t.Fatal("unexpected notification")
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("should close the channel when the context ends", func(t *testing.T) {
		path := writeConfig(t, sampleYAML)
		w, err := NewWatcher(path, zerolog.Nop())
		require.NoError(t, err)
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		changes, err := w.Watch(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-changes:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel was not closed")
		}
	})

	t.Run("should refuse to watch after close", func(t *testing.T) {
		w, err := NewWatcher(writeConfig(t, sampleYAML), zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = w.Watch(context.Background())
		assert.Error(t, err)
	})
}
