package toolexecutor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultMaxLines = 500

// sandbox confines file tools to a root directory.
type sandbox struct {
	root string
}

func (s sandbox) rootFor(ctx context.Context) (string, error) {
	root := s.root
	if ec := CallOptionsFromContext(ctx); ec != nil && ec.WorkingDir != "" {
		root = ec.WorkingDir
	}
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// resolve maps a tool-supplied path into the sandbox, rejecting escapes.
// Relative paths are taken relative to the sandbox root.
func (s sandbox) resolve(ctx context.Context, path string) (string, error) {
	root, err := s.rootFor(ctx)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = "."
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	// Resolve symlinks on the deepest existing ancestor so links cannot point outside.
	existing := target
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	if resolved, err := filepath.EvalSymlinks(existing); err == nil {
		rel, _ := filepath.Rel(existing, target)
		target = filepath.Join(resolved, rel)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("access denied: path escapes sandbox (%s)", path)
	}
	return target, nil
}

func fileReadTool(sb sandbox) ToolDefinition {
	return ToolDefinition{
		Name:        "file_read",
		Description: "Read the contents of a local file. Returns the text content of the file.",
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "Path to the file to read", Required: true},
			{Name: "max_lines", Type: "integer", Description: "Maximum number of lines to read (default: 500)", Default: defaultMaxLines},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			path, _ := params["path"].(string)
			maxLines := defaultMaxLines
			if v, ok := params["max_lines"].(float64); ok && v > 0 {
				maxLines = int(v)
			} else if v, ok := params["max_lines"].(int); ok && v > 0 {
				maxLines = v
			}

			target, err := sb.resolve(ctx, path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(target)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("file not found: %s", path)
				}
				return nil, err
			}
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("not a file: %s", path)
			}

			data, err := os.ReadFile(target)
			if err != nil {
				return nil, fmt.Errorf("error reading file: %w", err)
			}
			lines := strings.Split(string(data), "\n")
			if len(lines) > maxLines {
				return strings.Join(lines[:maxLines], "\n") +
					fmt.Sprintf("\n\n... (truncated, %d total lines)", len(lines)), nil
			}
			return string(data), nil
		},
	}
}

func fileWriteTool(sb sandbox) ToolDefinition {
	return ToolDefinition{
		Name:        "file_write",
		Description: "Write content to a local file. Creates the file and any parent directories if they don't exist.",
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "Path to the file to write", Required: true},
			{Name: "content", Type: "string", Description: "Content to write to the file", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			path, _ := params["path"].(string)
			content, _ := params["content"].(string)

			target, err := sb.resolve(ctx, path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, fmt.Errorf("error writing file: %w", err)
			}
			if err := os.WriteFile(target, []byte(content), 0644); err != nil {
				return nil, fmt.Errorf("error writing file: %w", err)
			}
			return fmt.Sprintf("Successfully wrote %d characters to %s", len([]rune(content)), path), nil
		},
	}
}

func listDirectoryTool(sb sandbox) ToolDefinition {
	return ToolDefinition{
		Name:        "list_directory",
		Description: "List the entries of a local directory. Directories are suffixed with '/'.",
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "Directory to list (default: the working directory)", Default: "."},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			path, _ := params["path"].(string)

			target, err := sb.resolve(ctx, path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(target)
			if err != nil {
				return nil, err
			}

			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) == 0 {
				return "(empty directory)", nil
			}
			return strings.Join(names, "\n"), nil
		},
	}
}
