package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStarter(t *testing.T) {
	t.Run("should write a loadable project", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "project")

		written, err := WriteStarter(dir, "Demo Team", false)
		require.NoError(t, err)
		assert.Len(t, written, 3)
		assert.FileExists(t, filepath.Join(dir, ".env.example"))
		assert.FileExists(t, filepath.Join(dir, ".gitignore"))

		cfg, err := Load(filepath.Join(dir, DefaultFileName))
		require.NoError(t, err)
		assert.Equal(t, "Demo Team", cfg.Team.Name)
		assert.Equal(t, []string{"researcher", "writer"}, cfg.AgentNames())
		assert.NoError(t, cfg.Validate())
		assert.Empty(t, cfg.Warnings())
	})

	t.Run("should refuse to overwrite without force", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, DefaultFileName)
		require.NoError(t, os.WriteFile(path, []byte("team: {}\n"), 0644))

		_, err := WriteStarter(dir, "", false)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExists)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "team: {}\n", string(data))
	})

	t.Run("should overwrite with force", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, DefaultFileName)
		require.NoError(t, os.WriteFile(path, []byte("team: {}\n"), 0644))

		_, err := WriteStarter(dir, "", true)
		require.NoError(t, err)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultTeamName, cfg.Team.Name)
	})
}
