package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hearth/internal/safety"
	"hearth/internal/tools"
)

// Tools returns all file tools bound to the sandbox.
func (s *Sandbox) Tools() []*tools.Tool {
	pathProp := tools.Property{Type: "string", Description: "Path relative to the sandbox root"}

	return []*tools.Tool{
		{
			Name:        "file_read",
			Description: "Read a text file from the sandbox.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{"path": pathProp}, "path"),
			Handler:     s.read,
			DefaultTier: safety.TierAuto,
		},
		{
			Name: "file_write",
			Description: "Write a text file in the sandbox. Mode 'create' fails if the file exists, " +
				"'overwrite' replaces it, 'append' adds to the end.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"path":    pathProp,
				"content": {Type: "string", Description: "File content"},
				"mode": {Type: "string", Description: "create, overwrite, or append",
					Enum: []any{"create", "overwrite", "append"}, Default: "create"},
			}, "path", "content"),
			Handler:     s.write,
			DefaultTier: safety.TierConfirm,
		},
		{
			Name:        "list_directory",
			Description: "List the entries of a sandbox directory.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{"path": pathProp}),
			Handler:     s.list,
			DefaultTier: safety.TierAuto,
		},
		{
			Name:        "directory_tree",
			Description: "Show the directory tree under a sandbox path, a few levels deep.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{"path": pathProp}),
			Handler:     s.tree,
			DefaultTier: safety.TierAuto,
		},
		{
			Name:        "search_files",
			Description: "Find files in the sandbox whose names match a glob pattern.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"pattern": {Type: "string", Description: "Glob pattern, e.g. *.md"},
			}, "pattern"),
			Handler:     s.searchNames,
			DefaultTier: safety.TierAuto,
		},
		{
			Name:        "search_in_files",
			Description: "Search file contents in the sandbox for a substring.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"query": {Type: "string", Description: "Substring to search for"},
			}, "query"),
			Handler:     s.searchContents,
			DefaultTier: safety.TierAuto,
		},
		{
			Name:        "file_info",
			Description: "Show size and modification time for a sandbox path.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{"path": pathProp}, "path"),
			Handler:     s.info,
			DefaultTier: safety.TierAuto,
		},
		{
			Name:        "file_move",
			Description: "Move or rename a file inside the sandbox.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"path":        pathProp,
				"destination": {Type: "string", Description: "New path relative to the sandbox root"},
			}, "path", "destination"),
			Handler:     s.move,
			DefaultTier: safety.TierConfirm,
		},
		{
			Name:        "file_delete",
			Description: "Delete a file in the sandbox. Directories require recursive=true.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"path":      pathProp,
				"recursive": {Type: "boolean", Description: "Delete directories recursively", Default: false},
			}, "path"),
			Handler:     s.delete,
			DefaultTier: safety.TierConfirm,
		},
	}
}

func (s *Sandbox) read(ctx context.Context, input tools.Input) (string, error) {
	abs, err := s.resolve(input.String("path"))
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", input.String("path"), err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", input.String("path"))
	}
	if info.Size() > maxReadBytes {
		return "", fmt.Errorf("file is %d bytes, larger than the %d byte limit", info.Size(), maxReadBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", input.String("path"), err)
	}
	return string(data), nil
}

func (s *Sandbox) write(ctx context.Context, input tools.Input) (string, error) {
	abs, err := s.resolve(input.String("path"))
	if err != nil {
		return "", err
	}
	content := input.String("content")
	if len(content) > maxWriteBytes {
		return "", fmt.Errorf("content is %d bytes, larger than the %d byte limit", len(content), maxWriteBytes)
	}

	mode := input.String("mode")
	if mode == "" {
		mode = "create"
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("cannot create parent directory: %w", err)
	}

	switch mode {
	case "create":
		f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return "", fmt.Errorf("%s already exists (use mode overwrite or append)", input.String("path"))
			}
			return "", fmt.Errorf("cannot create file: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return "", fmt.Errorf("write failed: %w", err)
		}
	case "overwrite":
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write failed: %w", err)
		}
	case "append":
		f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return "", fmt.Errorf("cannot open file: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return "", fmt.Errorf("append failed: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown mode %q (use create, overwrite, or append)", mode)
	}

	return fmt.Sprintf("wrote %d bytes to %s (%s)", len(content), input.String("path"), mode), nil
}

func (s *Sandbox) list(ctx context.Context, input tools.Input) (string, error) {
	rel := input.String("path")
	if rel == "" {
		rel = "."
	}
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("cannot list %s: %w", rel, err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	var b strings.Builder
	for i, e := range entries {
		if i >= maxListed {
			fmt.Fprintf(&b, "... and %d more entries\n", len(entries)-maxListed)
			break
		}
		b.WriteString(describeEntry(e))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Sandbox) tree(ctx context.Context, input tools.Input) (string, error) {
	rel := input.String("path")
	if rel == "" {
		rel = "."
	}
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	count := 0
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(abs, path)
		if relPath == "." {
			return nil
		}
		depth := strings.Count(relPath, string(filepath.Separator))
		if depth >= maxTreeDepth {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if count >= maxListed {
			return fs.SkipAll
		}
		count++
		indent := strings.Repeat("  ", depth)
		if d.IsDir() {
			fmt.Fprintf(&b, "%s%s/\n", indent, d.Name())
		} else {
			fmt.Fprintf(&b, "%s%s\n", indent, d.Name())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tree walk failed: %w", err)
	}
	if b.Len() == 0 {
		return "(empty directory)", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Sandbox) searchNames(ctx context.Context, input tools.Input) (string, error) {
	pattern := strings.TrimSpace(input.String("pattern"))
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	if _, err := filepath.Match(pattern, "probe"); err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	var matches []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			rel, _ := filepath.Rel(s.root, path)
			matches = append(matches, rel)
		}
		if len(matches) >= maxListed {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(matches) == 0 {
		return "no files match " + pattern, nil
	}
	sort.Strings(matches)
	return strings.Join(matches, "\n"), nil
}

func (s *Sandbox) searchContents(ctx context.Context, input tools.Input) (string, error) {
	query := input.String("query")
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}

	var b strings.Builder
	hits := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || hits >= maxListed {
			return nil
		}
		if checkSensitive(path) != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxReadBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for lineNo, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				rel, _ := filepath.Rel(s.root, path)
				fmt.Fprintf(&b, "%s:%d: %s\n", rel, lineNo+1, strings.TrimSpace(line))
				hits++
				if hits >= maxListed {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if hits == 0 {
		return "no matches for " + query, nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Sandbox) info(ctx context.Context, input tools.Input) (string, error) {
	abs, err := s.resolve(input.String("path"))
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot stat %s: %w", input.String("path"), err)
	}
	kind := "file"
	if st.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("%s: %s, %d bytes, modified %s",
		input.String("path"), kind, st.Size(), st.ModTime().Format("2006-01-02 15:04:05")), nil
}

func (s *Sandbox) move(ctx context.Context, input tools.Input) (string, error) {
	src, err := s.resolve(input.String("path"))
	if err != nil {
		return "", err
	}
	dst, err := s.resolve(input.String("destination"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("cannot create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move failed: %w", err)
	}
	return fmt.Sprintf("moved %s to %s", input.String("path"), input.String("destination")), nil
}

func (s *Sandbox) delete(ctx context.Context, input tools.Input) (string, error) {
	abs, err := s.resolve(input.String("path"))
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot delete %s: %w", input.String("path"), err)
	}
	if st.IsDir() {
		if !input.Bool("recursive", false) {
			return "", fmt.Errorf("%s is a directory (pass recursive=true to delete it)", input.String("path"))
		}
		if err := os.RemoveAll(abs); err != nil {
			return "", fmt.Errorf("delete failed: %w", err)
		}
		return fmt.Sprintf("deleted directory %s", input.String("path")), nil
	}
	if err := os.Remove(abs); err != nil {
		return "", fmt.Errorf("delete failed: %w", err)
	}
	return fmt.Sprintf("deleted %s", input.String("path")), nil
}
