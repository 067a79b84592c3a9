// Package github implements the distribution.ReleaseSource contract
// against the GitHub API: release asset lookup, asset download, source
// tree fetch, and repository visibility.
package github

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/simple-index-project/sipub/internal/distribution"
)

// Sentinel errors for GitHub operations.
var (
	ErrInvalidRepoRef  = errors.New("repository reference must be a github.com URL or 'owner/repo'")
	ErrReleaseNotFound = errors.New("release not found")
)

// Client wraps the GitHub API client for release operations.
// It satisfies distribution.ReleaseSource.
type Client struct {
	client     *github.Client
	httpClient *http.Client
}

// NewClient creates a GitHub-backed release source. The token may be
// empty for public repositories; private repositories require a token
// with repo read permission.
func NewClient(token string) *Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Client{
		client:     client,
		httpClient: http.DefaultClient,
	}
}

// ListReleaseAssets returns the assets attached to the release tagged tag.
// Returns ErrReleaseNotFound when no release carries the tag.
func (c *Client) ListReleaseAssets(ctx context.Context, repoRef, tag string) ([]distribution.ReleaseAsset, error) {
	owner, repo, err := ParseRepoRef(repoRef)
	if err != nil {
		return nil, err
	}

	release, resp, err := c.client.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: tag %s in %s/%s", ErrReleaseNotFound, tag, owner, repo)
		}
		return nil, fmt.Errorf("failed to get release %s: %w", tag, err)
	}

	assets := make([]distribution.ReleaseAsset, 0, len(release.Assets))
	for _, a := range release.Assets {
		if a.GetName() == "" {
			continue
		}
		assets = append(assets, distribution.ReleaseAsset{
			ID:   a.GetID(),
			Name: a.GetName(),
			URL:  a.GetBrowserDownloadURL(),
		})
	}
	return assets, nil
}

// DownloadAsset fetches one release asset into destDir and returns the
// local file path.
func (c *Client) DownloadAsset(ctx context.Context, repoRef string, asset distribution.ReleaseAsset, destDir string) (string, error) {
	owner, repo, err := ParseRepoRef(repoRef)
	if err != nil {
		return "", err
	}

	rc, redirect, err := c.client.Repositories.DownloadReleaseAsset(ctx, owner, repo, asset.ID, c.httpClient)
	if err != nil {
		return "", fmt.Errorf("failed to download asset %s: %w", asset.Name, err)
	}
	if rc == nil {
		resp, err := c.httpClient.Get(redirect)
		if err != nil {
			return "", fmt.Errorf("failed to follow asset redirect for %s: %w", asset.Name, err)
		}
		rc = resp.Body
	}
	defer func() { _ = rc.Close() }()

	path := filepath.Join(destDir, asset.Name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, rc); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write asset %s: %w", asset.Name, err)
	}

	return path, nil
}

// FetchSourceTree downloads the tarball for tag and unpacks it under
// destDir, returning the project root directory.
func (c *Client) FetchSourceTree(ctx context.Context, repoRef, tag, destDir string) (string, error) {
	owner, repo, err := ParseRepoRef(repoRef)
	if err != nil {
		return "", err
	}

	link, _, err := c.client.Repositories.GetArchiveLink(ctx, owner, repo, github.Tarball,
		&github.RepositoryContentGetOptions{Ref: tag}, 3)
	if err != nil {
		return "", fmt.Errorf("failed to resolve source archive for %s@%s: %w", repoRef, tag, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build archive request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download source archive: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source archive download returned status %d", resp.StatusCode)
	}

	srcDir := filepath.Join(destDir, "src")
	if err := untarStripRoot(resp.Body, srcDir); err != nil {
		return "", fmt.Errorf("failed to unpack source archive: %w", err)
	}
	return srcDir, nil
}

// RepoInfo reports repository attributes, notably whether it is private.
func (c *Client) RepoInfo(ctx context.Context, repoRef string) (*distribution.RepoInfo, error) {
	owner, repo, err := ParseRepoRef(repoRef)
	if err != nil {
		return nil, err
	}

	repository, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}
	return &distribution.RepoInfo{Private: repository.GetPrivate()}, nil
}

// ParseRepoRef extracts owner and repo from a repository reference:
// either a github.com URL (the package's homepage) or "owner/repo".
func ParseRepoRef(repoRef string) (owner, repo string, err error) {
	ref := strings.TrimSpace(repoRef)
	if ref == "" {
		return "", "", ErrInvalidRepoRef
	}

	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrInvalidRepoRef, err)
		}
		if u.Host != "github.com" && u.Host != "www.github.com" {
			return "", "", fmt.Errorf("%w: host %q", ErrInvalidRepoRef, u.Host)
		}
		ref = strings.Trim(u.Path, "/")
	}

	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: got %q", ErrInvalidRepoRef, repoRef)
	}

	owner = strings.TrimSpace(parts[0])
	repo = strings.TrimSuffix(strings.TrimSpace(parts[1]), ".git")
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: owner or repo is empty", ErrInvalidRepoRef)
	}

	return owner, repo, nil
}

// untarStripRoot unpacks a gzipped tarball, stripping the single
// top-level directory GitHub archives carry.
func untarStripRoot(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream: %w", err)
		}

		rel := stripRoot(hdr.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", target, err)
			}
		default:
			// Symlinks and special files are not expected in source archives.
		}
	}
}

// stripRoot removes the first path component of an archive entry name.
func stripRoot(name string) string {
	name = strings.TrimPrefix(name, "./")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return ""
}
