package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/simple-index-project/sipub/internal/distribution"
	"github.com/simple-index-project/sipub/internal/storage"
	"github.com/simple-index-project/sipub/internal/version"
)

// mockResolver implements Resolver with a function field and records
// invocations.
type mockResolver struct {
	resolveFn func(ctx context.Context, name string, rec version.Record, repoRef, workDir string) (distribution.Artifact, error)

	calls       int
	lastRepoRef string
}

func (m *mockResolver) Resolve(ctx context.Context, name string, rec version.Record, repoRef, workDir string) (distribution.Artifact, error) {
	m.calls++
	m.lastRepoRef = repoRef
	if m.resolveFn != nil {
		return m.resolveFn(ctx, name, rec, repoRef, workDir)
	}
	return distribution.Artifact{}, errors.New("resolver not configured")
}

// mockJournal implements storage.Journal and collects entries.
type mockJournal struct {
	recorded []*storage.Operation
	fail     bool
}

func (m *mockJournal) RecordOperation(op *storage.Operation) error {
	if m.fail {
		return errors.New("journal unavailable")
	}
	m.recorded = append(m.recorded, op)
	return nil
}

func (m *mockJournal) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// hostedResolver stages a wheel file in the work directory and returns
// a hosted artifact for it, the way the real resolver does.
func hostedResolver(t *testing.T) *mockResolver {
	t.Helper()
	return &mockResolver{
		resolveFn: func(_ context.Context, name string, rec version.Record, _, workDir string) (distribution.Artifact, error) {
			filename := fmt.Sprintf("%s-%s-py3-none-any.whl", name, rec.Core.String())
			staged := filepath.Join(workDir, filename)
			if err := os.WriteFile(staged, []byte("wheel "+rec.Raw), 0o644); err != nil {
				return distribution.Artifact{}, err
			}
			return distribution.Artifact{
				Kind:        distribution.KindHostedWheel,
				DownloadRef: fmt.Sprintf("../packages/%s/%s#sha256=abc", name, filename),
				Filename:    filename,
				LocalPath:   staged,
				SHA256:      "abc",
			}, nil
		},
	}
}

// fallbackResolver always degrades to a source-control reference.
func fallbackResolver() *mockResolver {
	return &mockResolver{
		resolveFn: func(_ context.Context, _ string, rec version.Record, repoRef, _ string) (distribution.Artifact, error) {
			return distribution.Artifact{
				Kind:        distribution.KindSourceFallback,
				DownloadRef: fmt.Sprintf("git+%s@%s", repoRef, rec.Raw),
			}, nil
		},
	}
}
