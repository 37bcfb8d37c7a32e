package toolexecutor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileRegistry(t *testing.T, root string) *Registry {
	t.Helper()
	reg := New()
	sb := sandbox{root: root}
	require.NoError(t, reg.RegisterTool(fileReadTool(sb)))
	require.NoError(t, reg.RegisterTool(fileWriteTool(sb)))
	require.NoError(t, reg.RegisterTool(listDirectoryTool(sb)))
	return reg
}

func TestFileTools(t *testing.T) {
	t.Run("should write then read a file", func(t *testing.T) {
		root := t.TempDir()
		reg := newFileRegistry(t, root)

		result := reg.Execute(context.Background(), "file_write", map[string]interface{}{
			"path":    "notes/out.txt",
			"content": "hello world",
		}, nil)
		require.True(t, result.Success, result.Error)
		assert.Equal(t, "Successfully wrote 11 characters to notes/out.txt", result.Output)

		data, err := os.ReadFile(filepath.Join(root, "notes", "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))

		result = reg.Execute(context.Background(), "file_read", map[string]interface{}{"path": "notes/out.txt"}, nil)
		require.True(t, result.Success, result.Error)
		assert.Equal(t, "hello world", result.Output)
	})

	t.Run("should truncate to max_lines", func(t *testing.T) {
		root := t.TempDir()
		lines := make([]string, 10)
		for i := range lines {
			lines[i] = fmt.Sprintf("line %d", i)
		}
		require.NoError(t, os.WriteFile(filepath.Join(root, "long.txt"), []byte(strings.Join(lines, "\n")), 0644))
		reg := newFileRegistry(t, root)

		result := reg.Execute(context.Background(), "file_read", map[string]interface{}{
			"path":      "long.txt",
			"max_lines": 3,
		}, nil)

		require.True(t, result.Success, result.Error)
		assert.True(t, strings.HasPrefix(result.Output, "line 0\nline 1\nline 2\n"))
		assert.Contains(t, result.Output, "(truncated, 10 total lines)")
	})

	t.Run("should report missing files", func(t *testing.T) {
		reg := newFileRegistry(t, t.TempDir())

		result := reg.Execute(context.Background(), "file_read", map[string]interface{}{"path": "nope.txt"}, nil)

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "file not found")
	})

	t.Run("should refuse paths outside the sandbox", func(t *testing.T) {
		reg := newFileRegistry(t, t.TempDir())

		for _, p := range []string{"../escape.txt", "/etc/passwd"} {
			result := reg.Execute(context.Background(), "file_read", map[string]interface{}{"path": p}, nil)
			assert.False(t, result.Success, p)
			assert.Contains(t, result.Error, "access denied", p)
		}
	})

	t.Run("should refuse symlinks that leave the sandbox", func(t *testing.T) {
		root := t.TempDir()
		outside := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0644))
		require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))
		reg := newFileRegistry(t, root)

		result := reg.Execute(context.Background(), "file_read", map[string]interface{}{"path": "link/secret.txt"}, nil)

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "access denied")
	})

	t.Run("should honour the working directory of the execution context", func(t *testing.T) {
		base := t.TempDir()
		work := t.TempDir()
		reg := newFileRegistry(t, base)

		result := reg.Execute(context.Background(), "file_write", map[string]interface{}{
			"path":    "a.txt",
			"content": "x",
		}, &CallOptions{WorkingDir: work})
		require.True(t, result.Success, result.Error)

		_, err := os.Stat(filepath.Join(work, "a.txt"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(base, "a.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("should list directories", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), nil, 0644))
		reg := newFileRegistry(t, root)

		result := reg.Execute(context.Background(), "list_directory", nil, nil)

		require.True(t, result.Success, result.Error)
		assert.Equal(t, "b.txt\nsub/", result.Output)
	})
}
