package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
version: "1.0"
metadata:
  name: team-registry
registry:
  root: ./registry
  base_url: https://acme.github.io/pypi
  packages_dir: packages
github:
  token_env: REGISTRY_GITHUB_TOKEN
build:
  command: ["python", "-m", "build"]
  timeout: 5m
signing:
  enabled: true
  key_files:
    - keys/publisher.asc
storage:
  database_path: operations.db
logging:
  level: debug
  format: json
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Registry.Root != "./registry" {
		t.Errorf("registry root = %s", cfg.Registry.Root)
	}
	if got := cfg.Registry.IndexURL(); got != "https://acme.github.io/pypi/" {
		t.Errorf("index URL = %s, want trailing slash appended", got)
	}
	if cfg.GitHub.TokenEnv != "REGISTRY_GITHUB_TOKEN" {
		t.Errorf("token env = %s", cfg.GitHub.TokenEnv)
	}
	if got := cfg.Build.GetBuildTimeout(); got != 5*time.Minute {
		t.Errorf("build timeout = %v, want 5m", got)
	}
	if !cfg.Signing.Enabled || len(cfg.Signing.KeyFiles) != 1 {
		t.Errorf("signing config not parsed: %+v", cfg.Signing)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging config = %+v", cfg.Logging)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name       string
		configData string
		wantErr    error
	}{
		{
			name:       "missing version",
			configData: "registry:\n  root: .\n  base_url: https://x/\n",
			wantErr:    ErrVersionRequired,
		},
		{
			name:       "missing registry root",
			configData: "version: \"1.0\"\nregistry:\n  base_url: https://x/\n",
			wantErr:    ErrRegistryRootRequired,
		},
		{
			name:       "missing base url",
			configData: "version: \"1.0\"\nregistry:\n  root: .\n",
			wantErr:    ErrBaseURLRequired,
		},
		{
			name:       "signing without keys",
			configData: "version: \"1.0\"\nregistry:\n  root: .\n  base_url: https://x/\nsigning:\n  enabled: true\n",
			wantErr:    ErrKeyFilesRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.configData))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfigFile(t, "version: [unclosed")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Registry.BaseURL = "https://acme.github.io/pypi/"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig returned error: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if loaded.Registry.BaseURL != cfg.Registry.BaseURL {
		t.Errorf("base URL = %s, want %s", loaded.Registry.BaseURL, cfg.Registry.BaseURL)
	}
}

func TestGitHubTokenFromEnvironment(t *testing.T) {
	t.Setenv("REGISTRY_TEST_TOKEN", "tok-123")

	g := GitHubConfig{TokenEnv: "REGISTRY_TEST_TOKEN"}
	if got := g.Token(); got != "tok-123" {
		t.Errorf("token = %s, want tok-123", got)
	}

	empty := GitHubConfig{TokenEnv: "REGISTRY_UNSET_TOKEN"}
	if got := empty.Token(); got != "" {
		t.Errorf("token = %s, want empty", got)
	}
}

func TestGetBuildTimeoutDefaults(t *testing.T) {
	b := BuildConfig{}
	if got := b.GetBuildTimeout(); got != 10*time.Minute {
		t.Errorf("timeout = %v, want default 10m", got)
	}
	b.Timeout = "garbage"
	if got := b.GetBuildTimeout(); got != 10*time.Minute {
		t.Errorf("timeout = %v, want default on parse error", got)
	}
}
