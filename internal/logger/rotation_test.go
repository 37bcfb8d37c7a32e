package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppedClock returns a clock that advances one second per call so backup
// names never collide.
func steppedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestOpenRotating(t *testing.T) {
	t.Run("should create missing directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "agentforge.log")

		w, err := OpenRotating(path, RotationConfig{MaxBytes: 10 << 20, MaxAge: 7 * 24 * time.Hour})
		require.NoError(t, err)
		defer w.Close()

		assert.FileExists(t, path)
	})

	t.Run("should append to an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentforge.log")
		require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0644))

		w, err := OpenRotating(path, RotationConfig{MaxBytes: 1024})
		require.NoError(t, err)
		_, err = w.Write([]byte("later\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "earlier\nlater\n", string(data))
	})
}

func TestRotatingWriterRotation(t *testing.T) {
	t.Run("should rotate before a write would overflow", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentforge.log")
		w, err := OpenRotating(path, RotationConfig{MaxBytes: 10})
		require.NoError(t, err)
		w.now = steppedClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
		defer w.Close()

		_, err = w.Write([]byte("12345678"))
		require.NoError(t, err)
		_, err = w.Write([]byte("abcdef"))
		require.NoError(t, err)

		backups, err := w.Backups()
		require.NoError(t, err)
		require.Len(t, backups, 1)
		assert.True(t, strings.HasSuffix(backups[0], "agentforge-20240102T030406.000.log"))

		old, err := os.ReadFile(backups[0])
		require.NoError(t, err)
		assert.Equal(t, "12345678", string(old))

		current, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "abcdef", string(current))
	})

	t.Run("should write oversized entries to an empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentforge.log")
		w, err := OpenRotating(path, RotationConfig{MaxBytes: 4})
		require.NoError(t, err)
		defer w.Close()

		n, err := w.Write([]byte("much too long"))
		require.NoError(t, err)
		assert.Equal(t, 13, n)

		backups, err := w.Backups()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	t.Run("should compress backups", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentforge.log")
		w, err := OpenRotating(path, RotationConfig{Compress: true})
		require.NoError(t, err)
		defer w.Close()

		_, err = w.Write([]byte("compress me"))
		require.NoError(t, err)
		require.NoError(t, w.Rotate())

		backups, err := w.Backups()
		require.NoError(t, err)
		require.Len(t, backups, 1)
		require.True(t, strings.HasSuffix(backups[0], ".log.gz"))

		f, err := os.Open(backups[0])
		require.NoError(t, err)
		defer f.Close()
		zr, err := gzip.NewReader(f)
		require.NoError(t, err)
		data, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, "compress me", string(data))
	})

	t.Run("should keep at most MaxBackups", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentforge.log")
		w, err := OpenRotating(path, RotationConfig{MaxBackups: 2})
		require.NoError(t, err)
		w.now = steppedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		defer w.Close()

		for i := 0; i < 4; i++ {
			_, err := w.Write([]byte("entry"))
			require.NoError(t, err)
			require.NoError(t, w.Rotate())
		}

		backups, err := w.Backups()
		require.NoError(t, err)
		require.Len(t, backups, 2)
		assert.True(t, strings.HasSuffix(backups[0], "agentforge-20240101T000004.000.log"))
		assert.True(t, strings.HasSuffix(backups[1], "agentforge-20240101T000003.000.log"))
	})
}

func TestRotatingWriterPrune(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentforge.log")

	expired := filepath.Join(dir, "agentforge-20200101T120000.000.log")
	require.NoError(t, os.WriteFile(expired, []byte("old"), 0644))
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(expired, old, old))

	unrelated := filepath.Join(dir, "agentforge-notes.log")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0644))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	w, err := OpenRotating(path, RotationConfig{MaxBytes: 10 << 20, MaxAge: 7 * 24 * time.Hour})
	require.NoError(t, err)
	defer w.Close()

	assert.NoFileExists(t, expired)
	assert.FileExists(t, unrelated)
}

func TestRotatingWriterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentforge.log")
	w, err := OpenRotating(path, RotationConfig{MaxBytes: 10 << 20, MaxAge: 7 * 24 * time.Hour})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
