// Package ops sequences register, update, and delete transitions
// against the registry documents. Each operation is a pure transition
// from the current document set to a file-tree mutation; all side
// effects besides distribution resolution stay with the caller.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/simple-index-project/sipub/internal/distribution"
	"github.com/simple-index-project/sipub/internal/index"
	"github.com/simple-index-project/sipub/internal/logger"
	"github.com/simple-index-project/sipub/internal/page"
	"github.com/simple-index-project/sipub/internal/pkgname"
	"github.com/simple-index-project/sipub/internal/storage"
	"github.com/simple-index-project/sipub/internal/version"
)

// Sentinel errors for state conflicts, detected before any mutation.
var (
	ErrAlreadyExists    = errors.New("package already registered")
	ErrNotFound         = errors.New("package not registered")
	ErrDuplicateVersion = errors.New("version already published")
)

const (
	indexFile   = "index.html"
	packagesDir = "packages"
)

// Resolver determines the installable artifact for one package version.
type Resolver interface {
	Resolve(ctx context.Context, name string, rec version.Record, repoRef, workDir string) (distribution.Artifact, error)
}

// Engine applies operations to a checked-out registry snapshot. It
// reads the current documents under root and emits a Mutation; it
// never writes the registry itself.
type Engine struct {
	root     string
	indexURL string
	resolver Resolver
	journal  storage.Journal // optional, nil disables journaling
	logger   *slog.Logger
}

// NewEngine creates an operation engine over the registry rooted at
// root. journal may be nil.
func NewEngine(root, indexURL string, resolver Resolver, journal storage.Journal, log *slog.Logger) *Engine {
	return &Engine{
		root:     root,
		indexURL: indexURL,
		resolver: resolver,
		journal:  journal,
		logger:   log,
	}
}

// RegisterRequest carries the parameters of a REGISTER operation.
type RegisterRequest struct {
	Name     string
	Version  string
	Author   string
	Summary  string
	Homepage string // also the source repository reference
	WorkDir  string // staging area for resolved artifacts
}

// UpdateRequest carries the parameters of an UPDATE operation. The
// source repository is recovered from the existing page's homepage.
type UpdateRequest struct {
	Name    string
	Version string
	WorkDir string
}

// DeleteRequest carries the parameters of a DELETE operation.
type DeleteRequest struct {
	Name string
}

// Register publishes a new package with its first version. Fails with
// ErrAlreadyExists when the normalized identity already has a page.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Mutation, error) {
	opLog, opID := logger.WithOperation(e.logger)
	start := time.Now()

	mut, artifact, err := e.register(ctx, opLog, req)
	e.journalize(opID, "register", req.Name, req.Version, artifact, start, err)
	return mut, err
}

func (e *Engine) register(ctx context.Context, opLog *slog.Logger, req RegisterRequest) (*Mutation, distribution.Artifact, error) {
	var none distribution.Artifact

	norm, err := pkgname.Normalize(req.Name)
	if err != nil {
		return nil, none, err
	}
	rec, err := version.Classify(req.Version)
	if err != nil {
		return nil, none, err
	}
	if err := validateMetadata(req); err != nil {
		return nil, none, err
	}

	idx, err := e.loadIndex()
	if err != nil {
		return nil, none, err
	}
	if idx.Has(norm) {
		return nil, none, fmt.Errorf("%s: %w", norm, ErrAlreadyExists)
	}

	opLog.Info("registering package", "package", norm, "version", rec.Canonical())

	artifact, err := e.resolver.Resolve(ctx, norm, rec, req.Homepage, req.WorkDir)
	if err != nil {
		return nil, none, err
	}

	entry := page.VersionEntry{
		Record:       rec,
		Kind:         artifact.Kind,
		DownloadRef:  artifact.DownloadRef,
		Title:        artifact.Filename,
		RequiresAuth: artifact.RequiresAuth,
	}
	meta := page.Metadata{
		Author:   req.Author,
		Summary:  req.Summary,
		Homepage: req.Homepage,
	}
	pageHTML, err := page.RenderNew(norm, e.indexURL, meta, []page.VersionEntry{entry})
	if err != nil {
		return nil, none, err
	}

	idx.AddEntry(norm, req.Summary)

	mut := &Mutation{}
	mut.Add(FileChange{Path: filepath.Join(norm, indexFile), Content: pageHTML})
	mut.Add(FileChange{Path: indexFile, Content: idx.Render()})
	addArtifactCopy(mut, norm, artifact)

	opLog.Info("package registered",
		"package", norm,
		"kind", string(artifact.Kind),
		"requires_auth", artifact.RequiresAuth)
	return mut, artifact, nil
}

// Update publishes a new version of an existing package. Fails with
// ErrNotFound when the package has no page, and ErrDuplicateVersion
// when the exact version is already published.
func (e *Engine) Update(ctx context.Context, req UpdateRequest) (*Mutation, error) {
	opLog, opID := logger.WithOperation(e.logger)
	start := time.Now()

	mut, artifact, err := e.update(ctx, opLog, req)
	e.journalize(opID, "update", req.Name, req.Version, artifact, start, err)
	return mut, err
}

func (e *Engine) update(ctx context.Context, opLog *slog.Logger, req UpdateRequest) (*Mutation, distribution.Artifact, error) {
	var none distribution.Artifact

	norm, err := pkgname.Normalize(req.Name)
	if err != nil {
		return nil, none, err
	}
	rec, err := version.Classify(req.Version)
	if err != nil {
		return nil, none, err
	}

	idx, err := e.loadIndex()
	if err != nil {
		return nil, none, err
	}
	if !idx.Has(norm) {
		return nil, none, fmt.Errorf("%s: %w", norm, ErrNotFound)
	}

	doc, err := e.loadPage(norm)
	if err != nil {
		return nil, none, err
	}
	if doc.HasVersion(rec.Canonical()) {
		return nil, none, fmt.Errorf("%s %s: %w", norm, rec.Canonical(), ErrDuplicateVersion)
	}

	opLog.Info("updating package", "package", norm, "version", rec.Canonical())

	artifact, err := e.resolver.Resolve(ctx, norm, rec, doc.Meta.Homepage, req.WorkDir)
	if err != nil {
		return nil, none, err
	}

	doc.ApplyUpdate(page.VersionEntry{
		Record:       rec,
		Kind:         artifact.Kind,
		DownloadRef:  artifact.DownloadRef,
		Title:        artifact.Filename,
		RequiresAuth: artifact.RequiresAuth,
	})

	pageHTML, err := doc.Render()
	if err != nil {
		return nil, none, err
	}

	mut := &Mutation{}
	mut.Add(FileChange{Path: filepath.Join(norm, indexFile), Content: pageHTML})
	addArtifactCopy(mut, norm, artifact)

	opLog.Info("package updated",
		"package", norm,
		"kind", string(artifact.Kind),
		"requires_auth", artifact.RequiresAuth)
	return mut, artifact, nil
}

// Delete removes a package: its page, its hosted artifacts, and its
// index entry. Fails with ErrNotFound when the package is absent.
func (e *Engine) Delete(_ context.Context, req DeleteRequest) (*Mutation, error) {
	opLog, opID := logger.WithOperation(e.logger)
	start := time.Now()

	mut, err := e.delete(opLog, req)
	e.journalize(opID, "delete", req.Name, "", distribution.Artifact{}, start, err)
	return mut, err
}

func (e *Engine) delete(opLog *slog.Logger, req DeleteRequest) (*Mutation, error) {
	norm, err := pkgname.Normalize(req.Name)
	if err != nil {
		return nil, err
	}

	idx, err := e.loadIndex()
	if err != nil {
		return nil, err
	}
	if !idx.Has(norm) {
		return nil, fmt.Errorf("%s: %w", norm, ErrNotFound)
	}
	if err := idx.RemoveEntry(norm); err != nil {
		return nil, err
	}

	opLog.Info("deleting package", "package", norm)

	mut := &Mutation{}
	mut.Add(FileChange{Path: norm, Delete: true, IsDir: true})
	mut.Add(FileChange{Path: filepath.Join(packagesDir, norm), Delete: true, IsDir: true})
	mut.Add(FileChange{Path: indexFile, Content: idx.Render()})
	return mut, nil
}

// loadIndex parses the current top-level index document. A missing
// file yields an empty index so the first REGISTER bootstraps it.
func (e *Engine) loadIndex() (*index.Document, error) {
	data, err := os.ReadFile(filepath.Join(e.root, indexFile))
	if os.IsNotExist(err) {
		return index.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index document: %w", err)
	}
	return index.Parse(data)
}

func (e *Engine) loadPage(norm string) (*page.Document, error) {
	data, err := os.ReadFile(filepath.Join(e.root, norm, indexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read page for %s: %w", norm, err)
	}
	return page.Parse(data)
}

// validateMetadata rejects registrations missing required metadata
// before any network activity happens.
func validateMetadata(req RegisterRequest) error {
	fields := []struct {
		name  string
		value string
	}{
		{"author", req.Author},
		{"short_desc", req.Summary},
		{"homepage", req.Homepage},
	}
	for _, f := range fields {
		if f.value == "" {
			return page.ErrMissingMetadata{Field: f.name}
		}
	}
	return nil
}

// addArtifactCopy stages a hosted artifact under the package-scoped
// storage path. Source-control fallbacks have no file to host.
func addArtifactCopy(mut *Mutation, norm string, artifact distribution.Artifact) {
	if artifact.LocalPath == "" {
		return
	}
	mut.Add(FileChange{
		Path:     filepath.Join(packagesDir, norm, artifact.Filename),
		CopyFrom: artifact.LocalPath,
	})
}

// journalize appends the operation outcome to the audit journal.
// Journal failures are logged, never surfaced: the journal is an
// audit trail, not part of the transition.
func (e *Engine) journalize(opID, action, name, ver string, artifact distribution.Artifact, start time.Time, opErr error) {
	if e.journal == nil {
		return
	}

	// Journal entries for the same package must share one key regardless
	// of the spelling the caller used.
	if norm, err := pkgname.Normalize(name); err == nil {
		name = norm
	}

	op := &storage.Operation{
		OperationID:  opID,
		Action:       action,
		Package:      name,
		Version:      ver,
		ArtifactKind: string(artifact.Kind),
		DownloadRef:  artifact.DownloadRef,
		RequiresAuth: artifact.RequiresAuth,
		Succeeded:    opErr == nil,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if opErr != nil {
		op.ErrorMessage = opErr.Error()
	}

	if err := e.journal.RecordOperation(op); err != nil {
		e.logger.Warn("failed to journal operation", "operation_id", opID, "error", err)
	}
}
