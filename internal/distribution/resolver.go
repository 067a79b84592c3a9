package distribution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/simple-index-project/sipub/internal/version"
)

// Resolver walks the fallback chain for one (package, version) pair:
// hosted release asset, then build from source, then a direct
// source-control reference. Each tier is attempted once; a tier
// failure proceeds immediately to the next tier.
type Resolver struct {
	source   ReleaseSource
	builder  SourceBuilder
	verifier SignatureVerifier // optional, nil disables signature checks
	logger   *slog.Logger
}

// NewResolver creates a resolver. The verifier may be nil; when set,
// assets shipping a detached .asc signature are verified before being
// accepted for hosting.
func NewResolver(source ReleaseSource, builder SourceBuilder, verifier SignatureVerifier, logger *slog.Logger) *Resolver {
	return &Resolver{
		source:   source,
		builder:  builder,
		verifier: verifier,
		logger:   logger,
	}
}

// Resolve determines the installable artifact for the given package
// version. workDir receives downloaded and built files; the returned
// artifact's LocalPath points into it for hosted kinds. Returns a
// *ResolutionError only when every tier has failed.
func (r *Resolver) Resolve(ctx context.Context, name string, rec version.Record, repoRef, workDir string) (Artifact, error) {
	requiresAuth := false
	if info, err := r.source.RepoInfo(ctx, repoRef); err != nil {
		r.logger.Warn("repository visibility unknown, assuming public", "repo", repoRef, "error", err)
	} else {
		requiresAuth = info.Private
	}

	var tierErrs []error

	artifact, err := r.resolveHosted(ctx, name, rec, repoRef, workDir)
	if err == nil {
		artifact.RequiresAuth = requiresAuth
		return artifact, nil
	}
	tierErrs = append(tierErrs, fmt.Errorf("hosted asset: %w", err))
	r.logger.Info("no hosted release asset, trying source build", "package", name, "version", rec.Raw, "error", err)

	artifact, err = r.resolveBuilt(ctx, name, rec, repoRef, workDir)
	if err == nil {
		artifact.RequiresAuth = requiresAuth
		return artifact, nil
	}
	tierErrs = append(tierErrs, fmt.Errorf("source build: %w", err))
	r.logger.Info("source build failed, falling back to source control", "package", name, "version", rec.Raw, "error", err)

	artifact, err = resolveSourceControl(rec, repoRef)
	if err == nil {
		artifact.RequiresAuth = requiresAuth
		return artifact, nil
	}
	tierErrs = append(tierErrs, fmt.Errorf("source control: %w", err))

	return Artifact{}, &ResolutionError{Package: name, Version: rec.Raw, Tiers: tierErrs}
}

// resolveHosted locates a matching release asset and stages it for hosting.
func (r *Resolver) resolveHosted(ctx context.Context, name string, rec version.Record, repoRef, workDir string) (Artifact, error) {
	assets, tag, err := r.listAssets(ctx, repoRef, rec)
	if err != nil {
		return Artifact{}, err
	}

	chosen, kind := matchAsset(assets, rec)
	if chosen == nil {
		return Artifact{}, fmt.Errorf("release %s carries no matching wheel or sdist", tag)
	}

	path, err := r.source.DownloadAsset(ctx, repoRef, *chosen, workDir)
	if err != nil {
		return Artifact{}, err
	}

	if err := r.verifySignature(ctx, repoRef, assets, *chosen, path, workDir); err != nil {
		return Artifact{}, err
	}

	return stageHosted(name, path, kind)
}

// resolveBuilt fetches the source tree at the version tag and builds
// distribution files from it.
func (r *Resolver) resolveBuilt(ctx context.Context, name string, rec version.Record, repoRef, workDir string) (Artifact, error) {
	var srcDir string
	var err error
	for _, tag := range tagCandidates(rec) {
		srcDir, err = r.source.FetchSourceTree(ctx, repoRef, tag, workDir)
		if err == nil {
			break
		}
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to fetch source tree: %w", err)
	}

	outDir := filepath.Join(workDir, "dist")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("failed to create build output directory: %w", err)
	}

	produced, err := r.builder.Build(ctx, srcDir, outDir)
	if err != nil {
		return Artifact{}, err
	}
	if len(produced) == 0 {
		return Artifact{}, fmt.Errorf("build produced no distribution files")
	}

	best := pickDistribution(produced)
	artifact, err := stageHosted(name, best, KindBuiltFromSrc)
	if err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

// resolveSourceControl constructs the direct install reference. The
// tag keeps the caller's original spelling, since that is the spelling
// the repository is most likely to have tagged. No package-name query
// parameter is appended; install tools infer the name from the project
// metadata.
func resolveSourceControl(rec version.Record, repoRef string) (Artifact, error) {
	ref := strings.TrimSpace(repoRef)
	if ref == "" {
		return Artifact{}, fmt.Errorf("no source repository reference")
	}
	if !strings.Contains(ref, "://") {
		ref = "https://github.com/" + strings.Trim(ref, "/")
	}
	ref = strings.TrimSuffix(strings.TrimSuffix(ref, "/"), ".git")

	tag := rec.Input
	if tag == "" {
		tag = rec.Raw
	}

	return Artifact{
		Kind:        KindSourceFallback,
		DownloadRef: fmt.Sprintf("git+%s@%s", ref, tag),
	}, nil
}

// listAssets tries the version's tag spellings and returns the first
// release found along with the tag that matched.
func (r *Resolver) listAssets(ctx context.Context, repoRef string, rec version.Record) ([]ReleaseAsset, string, error) {
	var lastErr error
	for _, tag := range tagCandidates(rec) {
		assets, err := r.source.ListReleaseAssets(ctx, repoRef, tag)
		if err == nil {
			return assets, tag, nil
		}
		lastErr = err
	}
	return nil, "", lastErr
}

// tagCandidates returns the tag spellings tried against the source
// repository, in order.
func tagCandidates(rec version.Record) []string {
	return []string{rec.Raw, "v" + rec.Raw}
}

// matchAsset picks the best installable asset: a wheel carrying the
// version string, else a source distribution archive.
func matchAsset(assets []ReleaseAsset, rec version.Record) (*ReleaseAsset, Kind) {
	var sdist *ReleaseAsset

	for i := range assets {
		lower := strings.ToLower(assets[i].Name)
		if !assetMatchesVersion(lower, rec) {
			continue
		}
		if strings.HasSuffix(lower, ".whl") {
			return &assets[i], KindHostedWheel
		}
		if sdist == nil && (strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".zip")) {
			sdist = &assets[i]
		}
	}

	if sdist != nil {
		return sdist, KindHostedSdist
	}
	return nil, ""
}

// assetMatchesVersion reports whether a filename mentions the version.
// Wheel filenames normalize hyphens to underscores, so both spellings
// are accepted.
func assetMatchesVersion(filename string, rec version.Record) bool {
	core := rec.Core.String()
	return strings.Contains(filename, rec.Raw) ||
		strings.Contains(filename, core) ||
		strings.Contains(filename, strings.ReplaceAll(core, "-", "_"))
}

// verifySignature checks the asset's detached signature when one is
// published alongside it and a verifier is configured.
func (r *Resolver) verifySignature(ctx context.Context, repoRef string, assets []ReleaseAsset, chosen ReleaseAsset, path, workDir string) error {
	if r.verifier == nil {
		return nil
	}

	var sig *ReleaseAsset
	for i := range assets {
		if assets[i].Name == chosen.Name+".asc" {
			sig = &assets[i]
			break
		}
	}
	if sig == nil {
		return nil
	}

	sigPath, err := r.source.DownloadAsset(ctx, repoRef, *sig, workDir)
	if err != nil {
		return fmt.Errorf("failed to download signature %s: %w", sig.Name, err)
	}

	message, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact for verification: %w", err)
	}
	signature, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	if err := r.verifier.VerifyDetached(message, signature); err != nil {
		return fmt.Errorf("signature verification failed for %s: %w", chosen.Name, err)
	}

	r.logger.Debug("asset signature verified", "asset", chosen.Name)
	return nil
}

// stageHosted fills in the hosted-artifact fields for a staged file.
func stageHosted(name, path string, kind Kind) (Artifact, error) {
	digest, err := fileSHA256(path)
	if err != nil {
		return Artifact{}, err
	}

	filename := filepath.Base(path)
	return Artifact{
		Kind:        kind,
		DownloadRef: fmt.Sprintf("../packages/%s/%s#sha256=%s", name, filename, digest),
		Filename:    filename,
		LocalPath:   path,
		SHA256:      digest,
	}, nil
}

// pickDistribution prefers a wheel over a source archive among built files.
func pickDistribution(paths []string) string {
	for _, p := range paths {
		if strings.HasSuffix(strings.ToLower(p), ".whl") {
			return p
		}
	}
	return paths[0]
}

// fileSHA256 computes the hex digest of a file's contents.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
