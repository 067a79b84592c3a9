package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simple-index-project/sipub/internal/config"
	"github.com/simple-index-project/sipub/internal/ops"
	"github.com/simple-index-project/sipub/internal/storage"
)

func writeTestConfig(t *testing.T, root string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "registry.yaml")
	cfg := fmt.Sprintf(`
version: "1.0"
registry:
  root: %s
  base_url: https://acme.github.io/pypi/
storage:
  database_path: %s
logging:
  level: error
  format: text
`, root, filepath.Join(dir, "operations.db"))
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestNewAppCommands(t *testing.T) {
	app := NewApp()

	want := []string{"register", "update", "delete", "init", "history", "verify"}
	for _, name := range want {
		if app.Command(name) == nil {
			t.Errorf("app is missing the %s command", name)
		}
	}
}

func TestRegisterRequiresFlags(t *testing.T) {
	app := NewApp()
	app.Writer = new(bytes.Buffer)

	cfgPath := writeTestConfig(t, t.TempDir())
	err := app.Run([]string{"registry-cli", "--config", cfgPath, "register", "--name", "demo"})
	if err == nil {
		t.Error("expected error for register without required flags")
	}
}

func TestVerifyEmptyRegistry(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTestConfig(t, root)

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out

	if err := app.Run([]string{"registry-cli", "--config", cfgPath, "verify"}); err != nil {
		t.Fatalf("verify returned error: %v", err)
	}
	if !strings.Contains(out.String(), "registry is consistent") {
		t.Errorf("output = %q", out.String())
	}
}

func TestVerifyJSONOutput(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTestConfig(t, root)

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out

	if err := app.Run([]string{"registry-cli", "--config", cfgPath, "verify", "--output", "json"}); err != nil {
		t.Fatalf("verify returned error: %v", err)
	}

	var result VerifyResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out.String())
	}
	if !result.Consistent {
		t.Errorf("result = %+v, want consistent", result)
	}
}

func TestInitScaffoldsRegistry(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTestConfig(t, root)

	app := NewApp()
	app.Writer = new(bytes.Buffer)

	if err := app.Run([]string{"registry-cli", "--config", cfgPath, "init"}); err != nil {
		t.Fatalf("init returned error: %v", err)
	}

	for _, rel := range []string{"index.html", "static/index.css", "static/package.css"} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("expected %s after init: %v", rel, err)
		}
	}

	// Running init again must not disturb the existing index.
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("custom"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := app.Run([]string{"registry-cli", "--config", cfgPath, "init"}); err != nil {
		t.Fatalf("second init returned error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "custom" {
		t.Error("init overwrote an existing index.html")
	}
}

func TestDeleteUnknownPackage(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTestConfig(t, root)

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out

	err := app.Run([]string{"registry-cli", "--config", cfgPath, "delete", "--name", "ghost"})
	if !errors.Is(err, ops.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if !strings.Contains(out.String(), "failed") {
		t.Errorf("output = %q, want failure summary", out.String())
	}
}

func TestHistoryListsJournaledOperations(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTestConfig(t, root)

	// Seed the journal directly; history only ever reads it.
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	db, err := storage.InitDB(storage.Config{DatabasePath: cfg.Storage.DatabasePath, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("init journal: %v", err)
	}
	seed := []*storage.Operation{
		{OperationID: "op-1", Action: "register", Package: "demo", Version: "1.0.0", Succeeded: true},
		{OperationID: "op-2", Action: "update", Package: "other", Version: "2.0.0", ErrorMessage: "boom"},
	}
	for _, op := range seed {
		if err := db.RecordOperation(op); err != nil {
			t.Fatalf("record operation: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out

	if err := app.Run([]string{"registry-cli", "--config", cfgPath, "history"}); err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if !strings.Contains(out.String(), "demo 1.0.0: ok") {
		t.Errorf("output = %q, want register entry", out.String())
	}
	if !strings.Contains(out.String(), "other 2.0.0: failed") {
		t.Errorf("output = %q, want failed update entry", out.String())
	}

	// The package filter accepts any spelling of the name.
	out.Reset()
	if err := app.Run([]string{"registry-cli", "--config", cfgPath, "history", "--name", "Demo"}); err != nil {
		t.Fatalf("filtered history returned error: %v", err)
	}
	if !strings.Contains(out.String(), "demo 1.0.0: ok") {
		t.Errorf("filtered output = %q, want demo entry", out.String())
	}
	if strings.Contains(out.String(), "other") {
		t.Errorf("filtered output = %q, must not list other packages", out.String())
	}
}

func TestHistoryEmptyJournal(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTestConfig(t, root)

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out

	if err := app.Run([]string{"registry-cli", "--config", cfgPath, "history"}); err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if !strings.Contains(out.String(), "journal is empty") {
		t.Errorf("output = %q", out.String())
	}
}

func TestMissingConfigFile(t *testing.T) {
	app := NewApp()
	app.Writer = new(bytes.Buffer)

	err := app.Run([]string{"registry-cli", "--config", "/nonexistent/registry.yaml", "verify"})
	if err == nil {
		t.Error("expected error for missing config file")
	}
}
