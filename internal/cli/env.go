package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; godotenv never overrides a variable that is
// already set, so earlier files and the real environment win.
var envFiles = []string{".env.local", ".env"}

// loadEnvFiles loads provider credentials from dotenv files in each dir.
// Missing files are skipped.
func loadEnvFiles(dirs ...string) error {
	seen := make(map[string]bool)
	for _, dir := range dirs {
		for _, name := range envFiles {
			path := filepath.Join(dir, name)
			if abs, err := filepath.Abs(path); err == nil {
				if seen[abs] {
					continue
				}
				seen[abs] = true
			}
			if err := godotenv.Load(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}
	return nil
}
