// Package index maintains the top-level listing page of the registry.
// Each package is one card entry; entries are kept sorted by normalized
// name so regeneration produces minimal, reviewable diffs.
package index

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"sort"

	"github.com/simple-index-project/sipub/internal/htmldoc"
)

// Sentinel errors for index operations.
var (
	ErrEntryNotFound  = errors.New("package not listed in index")
	ErrMalformedIndex = errors.New("malformed index document")
)

// Entry is one package card on the index page.
type Entry struct {
	Name    string // normalized package name, the card's id and link target
	Summary string

	raw []byte // original markup; nil forces a re-render
}

// Document is the structured form of the index page.
type Document struct {
	Entries []Entry

	src []byte // source the document was parsed from; nil for new indexes
}

// New returns an empty index document.
func New() *Document {
	return &Document{}
}

// Parse deserializes a rendered index page.
func Parse(src []byte) (*Document, error) {
	section, err := htmldoc.ExtractSection(src, "packages")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}

	doc := &Document{src: append([]byte(nil), src...)}
	for _, item := range section.Items {
		if item.Tag != "a" {
			continue
		}
		name := item.Attrs["id"]
		if name == "" {
			return nil, fmt.Errorf("%w: card without package id", ErrMalformedIndex)
		}
		doc.Entries = append(doc.Entries, Entry{
			Name:    name,
			Summary: item.Attrs["title"],
			raw:     item.Raw,
		})
	}

	doc.sortEntries()
	return doc, nil
}

// Has reports whether the package is listed.
func (d *Document) Has(name string) bool {
	_, ok := d.find(name)
	return ok
}

// AddEntry lists a package on the index. Adding an entry that is
// already present with identical metadata is a no-op, so repeated
// application yields identical documents.
func (d *Document) AddEntry(name, summary string) {
	if i, ok := d.find(name); ok {
		if d.Entries[i].Summary == summary {
			return
		}
		d.Entries[i].Summary = summary
		d.Entries[i].raw = nil
		return
	}

	d.Entries = append(d.Entries, Entry{Name: name, Summary: summary})
	d.sortEntries()
}

// RemoveEntry delists a package. Returns ErrEntryNotFound when absent.
func (d *Document) RemoveEntry(name string) error {
	i, ok := d.find(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
	return nil
}

// Names returns the listed package names in sorted order.
func (d *Document) Names() []string {
	names := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		names[i] = e.Name
	}
	return names
}

// Render serializes the index page. A document parsed from an existing
// index keeps every byte outside the card list, so hand-edited shell
// markup survives engine edits. Untouched cards keep their original
// markup; new or changed cards are rendered canonically.
func (d *Document) Render() []byte {
	d.sortEntries()

	if d.src != nil {
		fragments := make([][]byte, len(d.Entries))
		for i, entry := range d.Entries {
			if entry.raw != nil {
				fragments[i] = entry.raw
			} else {
				fragments[i] = renderCard(entry)
			}
		}
		if out, err := htmldoc.ReplaceSection(d.src, "packages", fragments); err == nil {
			return out
		}
		// A source that no longer parses falls back to the canonical shell.
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	buf.WriteString("  <meta charset=\"utf-8\"/>\n")
	buf.WriteString("  <title>Simple Package Index</title>\n")
	buf.WriteString("  <link rel=\"stylesheet\" href=\"static/index.css\"/>\n")
	buf.WriteString("</head>\n<body>\n")
	buf.WriteString("  <h1>Simple Package Index</h1>\n")
	buf.WriteString("  <section class=\"packages\" id=\"packages\">\n")

	for _, entry := range d.Entries {
		buf.WriteString("    ")
		if entry.raw != nil {
			buf.Write(entry.raw)
		} else {
			buf.Write(renderCard(entry))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("  </section>\n</body>\n</html>\n")
	return buf.Bytes()
}

func renderCard(entry Entry) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<a class=\"card\" id=\"%s\" href=\"%s/\" title=\"%s\">%s<span class=\"summary\">%s</span></a>",
		html.EscapeString(entry.Name),
		html.EscapeString(entry.Name),
		html.EscapeString(entry.Summary),
		html.EscapeString(entry.Name),
		html.EscapeString(entry.Summary))
	return buf.Bytes()
}

func (d *Document) find(name string) (int, bool) {
	for i := range d.Entries {
		if d.Entries[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

func (d *Document) sortEntries() {
	sort.SliceStable(d.Entries, func(i, j int) bool {
		return d.Entries[i].Name < d.Entries[j].Name
	})
}
