// Package cli provides the command-line interface for the registry
// publishing tool. Each command is one engine operation: the CLI loads
// configuration, wires the resolver stack, runs the operation, and
// either applies the resulting mutation or prints it as a diff.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/simple-index-project/sipub/internal/assets"
	"github.com/simple-index-project/sipub/internal/config"
	"github.com/simple-index-project/sipub/internal/distribution"
	gh "github.com/simple-index-project/sipub/internal/github"
	"github.com/simple-index-project/sipub/internal/gpg"
	"github.com/simple-index-project/sipub/internal/logger"
	"github.com/simple-index-project/sipub/internal/ops"
	"github.com/simple-index-project/sipub/internal/pkgname"
	"github.com/simple-index-project/sipub/internal/storage"
)

// OperationResult represents an operation outcome for JSON output
type OperationResult struct {
	Action       string   `json:"action"`
	Package      string   `json:"package"`
	Version      string   `json:"version,omitempty"`
	FilesChanged []string `json:"files_changed"`
	DryRun       bool     `json:"dry_run"`
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
}

// VerifyResult represents a registry consistency check for JSON output
type VerifyResult struct {
	Consistent bool     `json:"consistent"`
	Problems   []string `json:"problems,omitempty"`
}

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "registry-cli",
		Usage:    "Publish and maintain a static PEP503 package index",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "registry.yaml",
				Usage:   "path to registry configuration file",
				EnvVars: []string{"SIPUB_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error); overrides config",
				EnvVars: []string{"SIPUB_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log format (text, json); overrides config",
				EnvVars: []string{"SIPUB_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Register a new package with its first version",
				Flags: append(operationFlags(),
					&cli.StringFlag{
						Name:     "author",
						Usage:    "package author shown on the package page",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "desc",
						Usage:    "short description shown on the index and package page",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "homepage",
						Usage:    "source repository URL (also used for distribution resolution)",
						Required: true,
					},
				),
				Action: registerCommand,
			},
			{
				Name:   "update",
				Usage:  "Publish a new version of an existing package",
				Flags:  operationFlags(),
				Action: updateCommand,
			},
			{
				Name:  "delete",
				Usage: "Remove a package, its artifacts, and its index entry",
				Flags: []cli.Flag{
					nameFlag(),
					dryRunFlag(),
					outputFlag(),
				},
				Action: deleteCommand,
			},
			{
				Name:  "init",
				Usage: "Scaffold stylesheets and an empty index in the registry root",
				Flags: []cli.Flag{
					dryRunFlag(),
				},
				Action: initCommand,
			},
			{
				Name:  "history",
				Usage: "Show journaled operations, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "limit the listing to one package",
					},
					outputFlag(),
				},
				Action: historyCommand,
			},
			{
				Name:  "verify",
				Usage: "Check registry documents for structural and referential consistency",
				Flags: []cli.Flag{
					outputFlag(),
				},
				Action: verifyCommand,
			},
		},
	}
}

func operationFlags() []cli.Flag {
	return []cli.Flag{
		nameFlag(),
		&cli.StringFlag{
			Name:     "version",
			Aliases:  []string{"v"},
			Usage:    "version to publish (e.g., 1.2.0, v2.0.0-rc1)",
			Required: true,
		},
		dryRunFlag(),
		outputFlag(),
	}
}

func nameFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "name",
		Aliases:  []string{"n"},
		Usage:    "package name (normalized to its PEP503 form)",
		Required: true,
	}
}

func dryRunFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "print the resulting file changes as a diff without applying them",
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "output",
		Value: "text",
		Usage: "output format (text, json)",
	}
}

// setup loads configuration and builds the logger, honoring CLI
// overrides over the config file.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := c.String("log-level")
	if level == "" {
		level = cfg.Logging.Level
	}
	if level == "" {
		level = "info"
	}
	format := c.String("log-format")
	if format == "" {
		format = cfg.Logging.Format
	}
	if format == "" {
		format = "text"
	}

	log, err := logger.New(level, format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// buildEngine wires the resolver stack from configuration. The
// returned cleanup closes the journal database.
func buildEngine(cfg *config.Config, log *slog.Logger) (*ops.Engine, func(), error) {
	cleanup := func() {}

	client := gh.NewClient(cfg.GitHub.Token())
	builder := distribution.NewBuilder(distribution.NewRealCommandRunner(), cfg.Build.Command, log)

	var verifier distribution.SignatureVerifier
	if cfg.Signing.Enabled {
		v, err := gpg.NewVerifierFromKeyFiles(cfg.Signing.KeyFiles)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to load signing keys: %w", err)
		}
		verifier = v
	}

	resolver := distribution.NewResolver(client, builder, verifier, log)

	var journal storage.Journal
	if cfg.Storage.DatabasePath != "" {
		db, err := storage.InitDB(storage.Config{
			DatabasePath: cfg.Storage.DatabasePath,
			LogLevel:     "warn",
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize journal database: %w", err)
		}
		journal = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close journal database", "error", err)
			}
		}
	}

	engine := ops.NewEngine(cfg.Registry.Root, cfg.Registry.IndexURL(), resolver, journal, log)
	return engine, cleanup, nil
}

// registerCommand implements the register command.
func registerCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	engine, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	return runOperation(c, cfg, log, "register", func(ctx context.Context, workDir string) (*ops.Mutation, error) {
		return engine.Register(ctx, ops.RegisterRequest{
			Name:     c.String("name"),
			Version:  c.String("version"),
			Author:   c.String("author"),
			Summary:  c.String("desc"),
			Homepage: c.String("homepage"),
			WorkDir:  workDir,
		})
	})
}

// updateCommand implements the update command.
func updateCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	engine, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	return runOperation(c, cfg, log, "update", func(ctx context.Context, workDir string) (*ops.Mutation, error) {
		return engine.Update(ctx, ops.UpdateRequest{
			Name:    c.String("name"),
			Version: c.String("version"),
			WorkDir: workDir,
		})
	})
}

// deleteCommand implements the delete command.
func deleteCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	engine, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	return runOperation(c, cfg, log, "delete", func(ctx context.Context, _ string) (*ops.Mutation, error) {
		return engine.Delete(ctx, ops.DeleteRequest{Name: c.String("name")})
	})
}

// runOperation drives one engine operation: stage a work directory,
// run the transition, then apply or print the mutation.
func runOperation(c *cli.Context, cfg *config.Config, log *slog.Logger, action string, run func(ctx context.Context, workDir string) (*ops.Mutation, error)) error {
	start := time.Now()

	result := OperationResult{
		Action:  action,
		Package: c.String("name"),
		Version: c.String("version"),
		DryRun:  c.Bool("dry-run"),
	}

	workDir, err := stageWorkDir(c, action)
	if err != nil {
		return err
	}
	if workDir != nil {
		defer func() {
			log.Debug("removing work directory", "path", workDir.Root(), "age", workDir.Age())
			if err := workDir.Remove(); err != nil {
				log.Warn("failed to clean up work directory", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.Build.GetBuildTimeout())
	defer cancel()

	var root string
	mut, err := run(ctx, workDirRoot(workDir))
	if err == nil {
		root = cfg.Registry.Root
		for _, change := range mut.Changes {
			result.FilesChanged = append(result.FilesChanged, change.Path)
		}
		if c.Bool("dry-run") {
			var diff string
			diff, err = mut.Diff(root)
			if err == nil {
				fmt.Fprint(c.App.Writer, diff)
			}
		} else if mut.IsEmpty() {
			log.Info("operation produced no file changes")
		} else {
			err = mut.Apply(root, log)
		}
	}

	result.Success = err == nil
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
	}

	if emitErr := emitResult(c, result); emitErr != nil {
		return emitErr
	}
	return err
}

// stageWorkDir creates the artifact staging directory for operations
// that resolve distributions. Deletes need none.
func stageWorkDir(c *cli.Context, action string) (*storage.TempDir, error) {
	if action == "delete" {
		return nil, nil
	}
	return storage.NewTempDir(c.String("name"), c.String("version"))
}

func workDirRoot(t *storage.TempDir) string {
	if t == nil {
		return ""
	}
	return t.Root()
}

// emitResult writes the operation outcome to stdout in the requested
// format. Logs go to the configured handler; stdout carries only the
// result.
func emitResult(c *cli.Context, result OperationResult) error {
	if c.String("output") == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}

	status := "ok"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(c.App.Writer, "%s %s %s: %s (%d files, %dms)\n",
		result.Action, result.Package, result.Version, status,
		len(result.FilesChanged), result.DurationMs)
	return nil
}

// initCommand implements the init command.
func initCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	mut, err := assets.Scaffold(cfg.Registry.Root)
	if err != nil {
		return err
	}

	if c.Bool("dry-run") {
		diff, err := mut.Diff(cfg.Registry.Root)
		if err != nil {
			return err
		}
		fmt.Fprint(c.App.Writer, diff)
		return nil
	}
	return mut.Apply(cfg.Registry.Root, log)
}

// historyCommand implements the history command. It reads the journal
// the engine writes; mutation semantics never depend on it.
func historyCommand(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	if cfg.Storage.DatabasePath == "" {
		return fmt.Errorf("no journal database configured")
	}

	db, err := storage.InitDB(storage.Config{
		DatabasePath: cfg.Storage.DatabasePath,
		LogLevel:     "warn",
	})
	if err != nil {
		return fmt.Errorf("failed to open journal database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var entries []*storage.Operation
	if name := c.String("name"); name != "" {
		norm, err := pkgname.Normalize(name)
		if err != nil {
			return err
		}
		entries, err = db.ListByPackage(norm)
		if err != nil {
			return err
		}
	} else {
		entries, err = db.ListAll()
		if err != nil {
			return err
		}
	}

	if c.String("output") == "json" {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "journal is empty")
		return nil
	}
	for _, op := range entries {
		status := "ok"
		if !op.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(c.App.Writer, "%s  %-8s %s %s: %s\n",
			op.CreatedAt.Format(time.RFC3339), op.Action, op.Package, op.Version, status)
	}
	return nil
}

// verifyCommand implements the verify command.
func verifyCommand(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}

	problems, err := ops.Verify(cfg.Registry.Root)
	if err != nil {
		return err
	}

	result := VerifyResult{Consistent: len(problems) == 0, Problems: problems}
	if c.String("output") == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(data))
	} else {
		for _, p := range problems {
			fmt.Fprintln(c.App.Writer, p)
		}
		if result.Consistent {
			fmt.Fprintln(c.App.Writer, "registry is consistent")
		}
	}

	if !result.Consistent {
		return cli.Exit(fmt.Sprintf("registry has %d consistency problems", len(problems)), 1)
	}
	return nil
}
