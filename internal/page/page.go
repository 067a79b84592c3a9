// Package page maintains a package's own listing page. The rendered
// HTML is the persistent form; this package parses it back into a
// structured document, applies version-level edits, and re-renders,
// keeping untouched version entries byte-for-byte identical.
package page

import (
	"errors"
	"fmt"
	"strings"

	"github.com/simple-index-project/sipub/internal/distribution"
	"github.com/simple-index-project/sipub/internal/htmldoc"
	"github.com/simple-index-project/sipub/internal/version"
)

// Sentinel errors for page operations.
var (
	ErrMalformedPage   = errors.New("malformed package page")
	ErrVersionNotFound = errors.New("version not found on page")
)

// ErrMissingMetadata indicates a required metadata field was not supplied.
type ErrMissingMetadata struct {
	Field string
}

func (e ErrMissingMetadata) Error() string {
	return fmt.Sprintf("missing required metadata field %q", e.Field)
}

func (e ErrMissingMetadata) Is(target error) bool {
	_, ok := target.(ErrMissingMetadata)
	return ok
}

// Metadata is the package-level information shown in the page header.
// It is set at registration and never altered by updates.
type Metadata struct {
	DisplayName string
	Author      string
	Summary     string
	Homepage    string
}

// VersionEntry is one published version with its resolved artifact.
type VersionEntry struct {
	Record       version.Record
	Kind         distribution.Kind
	DownloadRef  string
	Title        string // link label, typically the artifact filename
	RequiresAuth bool
	Main         bool // default version marker, recomputed on every mutation

	raw []byte // original markup; nil forces a re-render of this entry
}

// Document is the structured form of a package page.
type Document struct {
	Name     string // normalized package name, the index key
	IndexURL string // base URL of the published index
	Meta     Metadata
	Entries  []VersionEntry // kept in descending version order

	src []byte // source the document was parsed from; nil for new pages
}

// Parse deserializes a rendered package page.
func Parse(src []byte) (*Document, error) {
	meta, name, err := parseHeader(src)
	if err != nil {
		return nil, err
	}

	indexURL, err := parseInstall(src)
	if err != nil {
		return nil, err
	}

	entries, err := parseVersions(src)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Name:     name,
		IndexURL: indexURL,
		Meta:     meta,
		Entries:  entries,
		src:      append([]byte(nil), src...),
	}
	doc.sortEntries()
	return doc, nil
}

func parseHeader(src []byte) (Metadata, string, error) {
	section, err := htmldoc.ExtractSection(src, "meta")
	if err != nil {
		return Metadata{}, "", fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	name := section.Attrs["data-package"]
	if name == "" {
		return Metadata{}, "", fmt.Errorf("%w: header carries no package key", ErrMalformedPage)
	}

	var meta Metadata
	for _, item := range section.Items {
		switch item.Attrs["id"] {
		case "display-name":
			meta.DisplayName = item.Text
		case "summary":
			meta.Summary = item.Text
		case "author":
			meta.Author = item.Text
		case "homepage":
			if item.Link != nil {
				meta.Homepage = item.Link.Href
			} else {
				meta.Homepage = item.Attrs["href"]
			}
		}
	}

	return meta, name, nil
}

func parseInstall(src []byte) (string, error) {
	section, err := htmldoc.ExtractSection(src, "install")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	for _, item := range section.Items {
		if item.Attrs["id"] == "install-command" {
			return item.Attrs["data-index-url"], nil
		}
	}
	return "", fmt.Errorf("%w: install section carries no command", ErrMalformedPage)
}

func parseVersions(src []byte) ([]VersionEntry, error) {
	section, err := htmldoc.ExtractSection(src, "versions")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	entries := make([]VersionEntry, 0, len(section.Items))
	for _, item := range section.Items {
		if item.Tag != "div" {
			continue
		}

		rec, err := version.Classify(item.Attrs["id"])
		if err != nil {
			return nil, fmt.Errorf("%w: version entry %q: %v", ErrMalformedPage, item.Attrs["id"], err)
		}

		kind := distribution.Kind(item.Attrs["data-kind"])
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: version %s has unknown artifact kind %q",
				ErrMalformedPage, rec.Canonical(), item.Attrs["data-kind"])
		}

		entry := VersionEntry{
			Record:       rec,
			Kind:         kind,
			RequiresAuth: item.Attrs["data-requires-auth"] == "true",
			Main:         hasClass(item.Attrs["class"], "main"),
			raw:          item.Raw,
		}
		if item.Link != nil {
			entry.DownloadRef = item.Link.Href
			entry.Title = item.Link.Title
			if entry.Title == "" {
				entry.Title = item.Link.Text
			}
		}
		if entry.DownloadRef == "" {
			return nil, fmt.Errorf("%w: version %s has no download link", ErrMalformedPage, rec.Canonical())
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// HasVersion reports whether the canonical version is already published.
func (d *Document) HasVersion(canonical string) bool {
	for _, e := range d.Entries {
		if e.Record.Canonical() == canonical {
			return true
		}
	}
	return false
}

// ApplyUpdate inserts a new version entry, or replaces the entry for
// the same canonical version (re-publishing replaces the artifact).
// Untouched sibling entries keep their original markup. The default
// version marker is recomputed afterwards.
func (d *Document) ApplyUpdate(entry VersionEntry) {
	entry.raw = nil // fresh entries are always re-rendered

	canonical := entry.Record.Canonical()
	replaced := false
	for i := range d.Entries {
		if d.Entries[i].Record.Canonical() == canonical {
			entry.Main = d.Entries[i].Main
			d.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		d.Entries = append(d.Entries, entry)
	}

	d.sortEntries()
	d.recomputeDefault()
}

// RemoveVersion excises exactly one version entry. It returns the
// number of remaining entries; zero means the page itself should be
// deleted. Returns ErrVersionNotFound when the version is absent.
func (d *Document) RemoveVersion(canonical string) (int, error) {
	for i := range d.Entries {
		if d.Entries[i].Record.Canonical() == canonical {
			d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
			d.recomputeDefault()
			return len(d.Entries), nil
		}
	}
	return len(d.Entries), fmt.Errorf("%w: %s", ErrVersionNotFound, canonical)
}

// DefaultVersion returns the entry currently marked as the default
// install target.
func (d *Document) DefaultVersion() (VersionEntry, bool) {
	for _, e := range d.Entries {
		if e.Main {
			return e, true
		}
	}
	return VersionEntry{}, false
}

// RequiresAuth reports whether any published artifact needs repository
// credentials to install.
func (d *Document) RequiresAuth() bool {
	for _, e := range d.Entries {
		if e.RequiresAuth {
			return true
		}
	}
	return false
}

// sortEntries orders entries newest-first.
func (d *Document) sortEntries() {
	for i := 0; i < len(d.Entries); i++ {
		best := i
		for j := i + 1; j < len(d.Entries); j++ {
			if version.Compare(d.Entries[j].Record, d.Entries[best].Record) > 0 {
				best = j
			}
		}
		if best != i {
			d.Entries[i], d.Entries[best] = d.Entries[best], d.Entries[i]
		}
	}
}

// recomputeDefault moves the main marker to the highest stable version,
// or the highest version overall when no stable version exists. Entries
// whose marker changes lose their cached markup and are re-rendered.
func (d *Document) recomputeDefault() {
	records := make([]version.Record, len(d.Entries))
	for i, e := range d.Entries {
		records[i] = e.Record
	}

	def, ok := version.SelectDefault(records)
	if !ok {
		return
	}
	defKey := def.Canonical()

	for i := range d.Entries {
		isDefault := d.Entries[i].Record.Canonical() == defKey
		if d.Entries[i].Main != isDefault {
			d.Entries[i].Main = isDefault
			d.Entries[i].raw = nil
		}
	}
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}
