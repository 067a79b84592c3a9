// Package distribution resolves a package version to an installable
// artifact: a hosted file copied into the index's own storage, a file
// built from the source tree, or a direct source-control reference.
package distribution

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies how a resolved artifact is installed.
type Kind string

const (
	KindHostedWheel    Kind = "hosted-wheel"
	KindHostedSdist    Kind = "hosted-sdist"
	KindBuiltFromSrc   Kind = "built-from-source"
	KindSourceFallback Kind = "source-control-fallback"
)

// Valid reports whether k is one of the declared artifact kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHostedWheel, KindHostedSdist, KindBuiltFromSrc, KindSourceFallback:
		return true
	}
	return false
}

// Hosted reports whether the artifact is served from the index's own storage.
func (k Kind) Hosted() bool {
	return k == KindHostedWheel || k == KindHostedSdist || k == KindBuiltFromSrc
}

// Artifact is the resolved installable for one (package, version) pair.
// Resolution happens once at register/update time; the artifact recorded
// on the page is a durable snapshot, not a live query.
type Artifact struct {
	Kind         Kind
	DownloadRef  string // href placed on the package page
	Filename     string // basename under package storage, empty for fallback refs
	LocalPath    string // produced file awaiting copy into storage, empty for fallback refs
	SHA256       string
	RequiresAuth bool // source repository is private
}

// ReleaseAsset is one downloadable file attached to a source-repository release.
type ReleaseAsset struct {
	ID   int64
	Name string
	URL  string
}

// RepoInfo describes the source repository backing a package.
type RepoInfo struct {
	Private bool
}

// ReleaseSource lists and fetches release data from a source repository.
// The production implementation is backed by the GitHub API.
type ReleaseSource interface {
	// ListReleaseAssets returns the assets of the release tagged tag.
	// An empty slice means the release exists but carries no assets; a
	// missing release is an error.
	ListReleaseAssets(ctx context.Context, repoRef, tag string) ([]ReleaseAsset, error)

	// DownloadAsset fetches one asset into destDir and returns its local path.
	DownloadAsset(ctx context.Context, repoRef string, asset ReleaseAsset, destDir string) (string, error)

	// FetchSourceTree downloads and unpacks the source tree at tag,
	// returning the unpacked project directory.
	FetchSourceTree(ctx context.Context, repoRef, tag, destDir string) (string, error)

	// RepoInfo reports repository attributes, notably visibility.
	RepoInfo(ctx context.Context, repoRef string) (*RepoInfo, error)
}

// SourceBuilder produces distribution files from an unpacked source tree.
type SourceBuilder interface {
	// Build runs a build-backend-agnostic build and returns the paths of
	// the produced distribution files.
	Build(ctx context.Context, srcDir, outDir string) ([]string, error)
}

// SignatureVerifier checks a detached signature over an artifact.
type SignatureVerifier interface {
	VerifyDetached(message, signature []byte) error
}

// ResolutionError is returned when every fallback tier has failed.
type ResolutionError struct {
	Package string
	Version string
	Tiers   []error
}

func (e *ResolutionError) Error() string {
	msgs := make([]string, 0, len(e.Tiers))
	for _, err := range e.Tiers {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("cannot resolve %s %s: %s", e.Package, e.Version, strings.Join(msgs, "; "))
}

func (e *ResolutionError) Unwrap() []error {
	return e.Tiers
}
