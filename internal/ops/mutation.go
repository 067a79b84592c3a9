package ops

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// FileChange describes one element of a file-tree mutation, with Path
// relative to the registry root. Exactly one of Content, CopyFrom, or
// Delete is meaningful.
type FileChange struct {
	Path     string
	Content  []byte // new document content
	CopyFrom string // absolute path of a staged artifact to copy in
	Delete   bool   // remove the path
	IsDir    bool   // with Delete, remove the whole subtree
}

// Mutation is the complete file-tree result of one operation. The
// engine emits it without touching the registry; persisting it is the
// caller's decision.
type Mutation struct {
	Changes []FileChange
}

func (m *Mutation) Add(c FileChange) {
	m.Changes = append(m.Changes, c)
}

// IsEmpty reports whether the mutation carries no changes.
func (m *Mutation) IsEmpty() bool {
	return len(m.Changes) == 0
}

// Apply persists the mutation under root. Writes are idempotent:
// content identical to what is already on disk is skipped, so
// re-applying the same mutation produces no further changes.
func (m *Mutation) Apply(root string, logger *slog.Logger) error {
	for _, c := range m.Changes {
		target := filepath.Join(root, c.Path)

		switch {
		case c.Delete:
			if err := removePath(target, c.IsDir); err != nil {
				return fmt.Errorf("failed to delete %s: %w", c.Path, err)
			}
			logger.Debug("path removed", "path", c.Path)

		case c.CopyFrom != "":
			data, err := os.ReadFile(c.CopyFrom)
			if err != nil {
				return fmt.Errorf("failed to read staged artifact %s: %w", c.CopyFrom, err)
			}
			if err := writeFileIfChanged(target, data, logger); err != nil {
				return fmt.Errorf("failed to copy artifact to %s: %w", c.Path, err)
			}

		default:
			if err := writeFileIfChanged(target, c.Content, logger); err != nil {
				return fmt.Errorf("failed to write %s: %w", c.Path, err)
			}
		}
	}
	return nil
}

// Diff renders a human-readable unified diff of the mutation against
// the documents currently under root. Artifact copies are summarized
// rather than diffed.
func (m *Mutation) Diff(root string) (string, error) {
	var buf bytes.Buffer

	for _, c := range m.Changes {
		target := filepath.Join(root, c.Path)

		switch {
		case c.Delete && c.IsDir:
			fmt.Fprintf(&buf, "delete directory %s/\n", c.Path)

		case c.Delete:
			old, err := os.ReadFile(target)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", c.Path, err)
			}
			text, err := unifiedDiff(c.Path, string(old), "")
			if err != nil {
				return "", err
			}
			buf.WriteString(text)

		case c.CopyFrom != "":
			info, err := os.Stat(c.CopyFrom)
			if err != nil {
				return "", fmt.Errorf("failed to stat staged artifact %s: %w", c.CopyFrom, err)
			}
			fmt.Fprintf(&buf, "copy artifact %s (%d bytes)\n", c.Path, info.Size())

		default:
			var old string
			if data, err := os.ReadFile(target); err == nil {
				old = string(data)
			}
			if old == string(c.Content) {
				continue
			}
			text, err := unifiedDiff(c.Path, old, string(c.Content))
			if err != nil {
				return "", err
			}
			buf.WriteString(text)
		}
	}

	return buf.String(), nil
}

func unifiedDiff(path, before, after string) (string, error) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to diff %s: %w", path, err)
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text, nil
}

func removePath(target string, isDir bool) error {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return nil // already gone
	}
	if isDir {
		return os.RemoveAll(target)
	}
	return os.Remove(target)
}

// writeFileIfChanged writes content to a file only if it differs from
// existing content, keeping repeated applications idempotent.
func writeFileIfChanged(path string, content []byte, logger *slog.Logger) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		if contentMatches(existing, content) {
			logger.Debug("file unchanged, skipping", "path", path)
			return nil
		}
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Debug("file written", "path", path)
	return nil
}

// contentMatches compares two byte slices for equality.
// Uses SHA256 hash comparison for efficiency with large files.
func contentMatches(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	if len(a) < 1024 {
		return bytes.Equal(a, b)
	}

	hashA := sha256.Sum256(a)
	hashB := sha256.Sum256(b)
	return hashA == hashB
}
