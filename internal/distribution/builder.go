package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// CommandRunner executes external commands.
// This interface enables testing without actual command execution.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes actual system commands.
type RealCommandRunner struct{}

// NewRealCommandRunner creates a command runner that executes real commands.
func NewRealCommandRunner() *RealCommandRunner {
	return &RealCommandRunner{}
}

// Run executes a command in dir and returns combined stdout/stderr output.
func (r *RealCommandRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Builder runs a build-backend-agnostic build on a fetched source
// tree. The default command is "python -m build", which honors
// whatever backend pyproject.toml declares.
type Builder struct {
	runner  CommandRunner
	command []string
	logger  *slog.Logger
}

// NewBuilder creates a source builder. command is the build invocation
// split into argv form; when empty the default python build is used.
func NewBuilder(runner CommandRunner, command []string, logger *slog.Logger) *Builder {
	if len(command) == 0 {
		command = []string{"python", "-m", "build"}
	}
	return &Builder{
		runner:  runner,
		command: command,
		logger:  logger,
	}
}

// Build produces distribution files from srcDir into outDir and
// returns their paths, wheels first. Fails when the tree carries no
// buildable project metadata or the build tool errors.
func (b *Builder) Build(ctx context.Context, srcDir, outDir string) ([]string, error) {
	if !hasProjectMetadata(srcDir) {
		return nil, fmt.Errorf("no buildable project metadata in %s", srcDir)
	}

	args := append(append([]string(nil), b.command[1:]...), "--outdir", outDir)
	output, err := b.runner.Run(ctx, srcDir, b.command[0], args...)
	if err != nil {
		b.logger.Debug("build command failed", "command", strings.Join(b.command, " "), "output", string(output))
		return nil, fmt.Errorf("build command failed: %w", err)
	}

	produced, err := collectDistributions(outDir)
	if err != nil {
		return nil, err
	}
	if len(produced) == 0 {
		return nil, fmt.Errorf("build succeeded but produced no distribution files")
	}

	b.logger.Info("built distributions from source", "count", len(produced))
	return produced, nil
}

// hasProjectMetadata reports whether the source tree declares a build.
func hasProjectMetadata(srcDir string) bool {
	for _, f := range []string{"pyproject.toml", "setup.py", "setup.cfg"} {
		if _, err := os.Stat(filepath.Join(srcDir, f)); err == nil {
			return true
		}
	}
	return false
}

// collectDistributions lists built wheel and sdist files, wheels first.
func collectDistributions(outDir string) ([]string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read build output directory: %w", err)
	}

	var wheels, sdists []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		path := filepath.Join(outDir, entry.Name())
		switch {
		case strings.HasSuffix(name, ".whl"):
			wheels = append(wheels, path)
		case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".zip"):
			sdists = append(sdists, path)
		}
	}

	sort.Strings(wheels)
	sort.Strings(sdists)
	return append(wheels, sdists...), nil
}
