// Package config provides YAML-based configuration for the registry
// publishing tool: where the registry documents live, how to reach
// GitHub, how source builds run, and which keys sign artifacts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired      = errors.New("version is required")
	ErrRegistryRootRequired = errors.New("registry root is required")
	ErrBaseURLRequired      = errors.New("registry base_url is required")
	ErrKeyFilesRequired     = errors.New("signing key_files is required when signing is enabled")
)

// Config represents the top-level configuration structure.
type Config struct {
	Version  string         `yaml:"version"`
	Metadata Metadata       `yaml:"metadata"`
	Registry RegistryConfig `yaml:"registry"`
	GitHub   GitHubConfig   `yaml:"github"`
	Build    BuildConfig    `yaml:"build"`
	Signing  SigningConfig  `yaml:"signing"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Metadata represents metadata about the configuration.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// RegistryConfig locates the registry document tree.
type RegistryConfig struct {
	Root        string `yaml:"root"`
	BaseURL     string `yaml:"base_url"`
	PackagesDir string `yaml:"packages_dir"`
}

// IndexURL returns the base URL with a guaranteed trailing slash, the
// form install commands embed.
func (r *RegistryConfig) IndexURL() string {
	if strings.HasSuffix(r.BaseURL, "/") {
		return r.BaseURL
	}
	return r.BaseURL + "/"
}

// GitHubConfig controls API access to source repositories.
type GitHubConfig struct {
	TokenEnv string `yaml:"token_env"`
}

// Token resolves the API token from the configured environment
// variable. Empty means unauthenticated access to public repositories.
func (g *GitHubConfig) Token() string {
	env := g.TokenEnv
	if env == "" {
		env = "GITHUB_TOKEN"
	}
	return os.Getenv(env)
}

// BuildConfig controls the build-from-source tier.
type BuildConfig struct {
	Command []string `yaml:"command"`
	Timeout string   `yaml:"timeout"`
}

// GetBuildTimeout parses and returns the build timeout duration
func (b *BuildConfig) GetBuildTimeout() time.Duration {
	if b.Timeout == "" {
		return 10 * time.Minute // Default timeout
	}
	timeout, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 10 * time.Minute // Default on parse error
	}
	return timeout
}

// SigningConfig controls detached signature verification of hosted
// release assets.
type SigningConfig struct {
	Enabled  bool     `yaml:"enabled"`
	KeyFiles []string `yaml:"key_files"`
}

// StorageConfig represents storage configuration for the operation journal.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads and parses the registry configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if c.Registry.Root == "" {
		return ErrRegistryRootRequired
	}
	if c.Registry.BaseURL == "" {
		return ErrBaseURLRequired
	}
	if c.Signing.Enabled && len(c.Signing.KeyFiles) == 0 {
		return ErrKeyFilesRequired
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults for a
// registry rooted in the current directory.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Registry: RegistryConfig{
			Root:        ".",
			BaseURL:     "https://example.github.io/pypi/",
			PackagesDir: "packages",
		},
		GitHub: GitHubConfig{
			TokenEnv: "GITHUB_TOKEN",
		},
		Build: BuildConfig{
			Command: []string{"python", "-m", "build"},
			Timeout: "10m",
		},
		Storage: StorageConfig{
			DatabasePath: "operations.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}
