package assets

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScaffoldFreshRoot(t *testing.T) {
	root := t.TempDir()

	mut, err := Scaffold(root)
	if err != nil {
		t.Fatalf("Scaffold returned error: %v", err)
	}
	if err := mut.Apply(root, testLogger()); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	for _, rel := range []string{
		filepath.Join("static", "index.css"),
		filepath.Join("static", "package.css"),
		"index.html",
	} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("expected %s: %v", rel, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<html") {
		t.Errorf("index.html = %q, want an HTML document", data)
	}
}

func TestScaffoldPreservesExistingIndex(t *testing.T) {
	root := t.TempDir()
	existing := []byte("hand-edited index")
	if err := os.WriteFile(filepath.Join(root, "index.html"), existing, 0o644); err != nil {
		t.Fatal(err)
	}

	mut, err := Scaffold(root)
	if err != nil {
		t.Fatalf("Scaffold returned error: %v", err)
	}
	for _, c := range mut.Changes {
		if c.Path == "index.html" {
			t.Error("Scaffold staged a write to an existing index.html")
		}
	}
	if err := mut.Apply(root, testLogger()); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(existing) {
		t.Error("existing index.html was modified")
	}
}

func TestScaffoldIdempotent(t *testing.T) {
	root := t.TempDir()

	mut, err := Scaffold(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := mut.Apply(root, testLogger()); err != nil {
		t.Fatal(err)
	}

	again, err := Scaffold(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := again.Apply(root, testLogger()); err != nil {
		t.Fatalf("second Apply returned error: %v", err)
	}
}
