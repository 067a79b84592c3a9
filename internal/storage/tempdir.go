package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TempDir manages a temporary work directory for one resolution run.
// Downloaded assets, fetched source trees, and build outputs are
// staged under it.
type TempDir struct {
	root    string
	created time.Time
}

// NewTempDir creates a fresh work directory for resolving one
// (package, version) pair. The caller is responsible for cleaning up
// by calling Remove().
func NewTempDir(pkg, version string) (*TempDir, error) {
	if pkg == "" {
		return nil, fmt.Errorf("package cannot be empty")
	}
	if version == "" {
		return nil, fmt.Errorf("version cannot be empty")
	}

	timestamp := time.Now().Format("20060102T150405")
	dirname := fmt.Sprintf("sipub-%s-%s-%s", pkg, version, timestamp)

	root := filepath.Join(os.TempDir(), dirname)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	return &TempDir{
		root:    root,
		created: time.Now(),
	}, nil
}

// Root returns the work directory path.
// Returns empty string if TempDir was not initialized.
func (t *TempDir) Root() string {
	return t.root
}

// Remove deletes the work directory and all its contents.
// It does not fail if the directory is already gone (idempotent).
func (t *TempDir) Remove() error {
	if t.root == "" {
		return nil // Nothing to remove
	}

	if _, err := os.Stat(t.root); os.IsNotExist(err) {
		return nil // Already removed, this is fine
	}

	if err := os.RemoveAll(t.root); err != nil {
		return fmt.Errorf("failed to remove work directory %s: %w", t.root, err)
	}

	return nil
}

// Age returns how long ago the work directory was created.
func (t *TempDir) Age() time.Duration {
	return time.Since(t.created)
}
