// Package file provides sandboxed filesystem tools. Every path resolves
// inside a single sandbox root; traversal outside it and access to secret
// material are refused before any handler logic runs.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxWriteBytes = 1 << 20 // 1 MiB
	maxReadBytes  = 1 << 20
	maxTreeDepth  = 5
	maxListed     = 200
)

// sensitiveNames are file names and suffixes that are never readable or
// writable through these tools, whatever the classifier says.
var sensitiveSuffixes = []string{
	".pem", ".key", ".p12", ".pfx",
}

var sensitiveNames = []string{
	".env", "id_rsa", "id_ed25519", "id_ecdsa",
	"credentials", ".netrc", ".npmrc", ".pypirc",
}

// Sandbox roots all file tools at one directory.
type Sandbox struct {
	root string
}

// NewSandbox creates the sandbox, making the root directory if needed.
func NewSandbox(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the sandbox root directory.
func (s *Sandbox) Root() string { return s.root }

// resolve validates a relative path and returns its absolute location
// inside the sandbox.
func (s *Sandbox) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be relative to the sandbox")
	}
	if strings.Contains(rel, "..") {
		return "", fmt.Errorf("path may not contain '..'")
	}

	abs := filepath.Join(s.root, filepath.Clean(rel))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the sandbox")
	}
	if err := checkSensitive(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func checkSensitive(path string) error {
	base := strings.ToLower(filepath.Base(path))
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(base, suffix) {
			return fmt.Errorf("access to %s files is not permitted", suffix)
		}
	}
	for _, name := range sensitiveNames {
		if base == name || strings.HasPrefix(base, name+".") {
			return fmt.Errorf("access to %s is not permitted", name)
		}
	}
	return nil
}

func describeEntry(e os.DirEntry) string {
	info, err := e.Info()
	if err != nil {
		return e.Name()
	}
	if e.IsDir() {
		return fmt.Sprintf("%s/ (dir)", e.Name())
	}
	return fmt.Sprintf("%s (%d bytes, %s)", e.Name(), info.Size(),
		info.ModTime().Format(time.DateTime))
}
