package page

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/simple-index-project/sipub/internal/htmldoc"
)

// RenderNew renders a brand-new package page. Required metadata fields
// (author, summary, homepage) must be present; a missing field fails
// with ErrMissingMetadata before anything is written. When no display
// name is given it is derived from the package name.
func RenderNew(name, indexURL string, meta Metadata, entries []VersionEntry) ([]byte, error) {
	if meta.DisplayName == "" {
		meta.DisplayName = displayTitle(name)
	}

	doc := &Document{
		Name:     name,
		IndexURL: indexURL,
		Meta:     meta,
	}
	for _, e := range entries {
		e.raw = nil
		doc.Entries = append(doc.Entries, e)
	}
	doc.sortEntries()
	doc.recomputeDefault()

	return doc.Render()
}

// Render serializes the document back to HTML. A document parsed from
// an existing page keeps every byte outside the install and versions
// sections, so hand-edited shell markup survives engine edits; version
// entries keep their original markup unless they were modified. New
// documents render the full canonical shell.
func (d *Document) Render() ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	if d.src != nil {
		return d.renderInto(d.src)
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	buf.WriteString("  <meta charset=\"utf-8\"/>\n")
	fmt.Fprintf(&buf, "  <title>%s</title>\n", html.EscapeString(d.Meta.DisplayName))
	buf.WriteString("  <link rel=\"stylesheet\" href=\"../static/package.css\"/>\n")
	buf.WriteString("</head>\n<body>\n")

	d.renderHeader(&buf)
	d.renderInstall(&buf)
	d.renderVersions(&buf)

	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

// renderInto splices the engine-owned sections back into the original
// page source. The install command is regenerated because it depends
// on the authentication state of the whole entry set.
func (d *Document) renderInto(src []byte) ([]byte, error) {
	out, err := htmldoc.ReplaceSection(src, "install", [][]byte{d.installCommand()})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	fragments := make([][]byte, len(d.Entries))
	for i, entry := range d.Entries {
		if entry.raw != nil {
			fragments[i] = entry.raw
		} else {
			fragments[i] = renderEntry(entry)
		}
	}
	out, err = htmldoc.ReplaceSection(out, "versions", fragments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}
	return out, nil
}

func (d *Document) validate() error {
	switch {
	case d.Meta.Author == "":
		return ErrMissingMetadata{Field: "author"}
	case d.Meta.Summary == "":
		return ErrMissingMetadata{Field: "summary"}
	case d.Meta.Homepage == "":
		return ErrMissingMetadata{Field: "homepage"}
	case d.Meta.DisplayName == "":
		return ErrMissingMetadata{Field: "display_name"}
	case d.Name == "":
		return ErrMissingMetadata{Field: "name"}
	}
	return nil
}

func (d *Document) renderHeader(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "  <section class=\"header\" id=\"meta\" data-package=\"%s\">\n",
		html.EscapeString(d.Name))
	fmt.Fprintf(buf, "    <h1 id=\"display-name\">%s</h1>\n", html.EscapeString(d.Meta.DisplayName))
	fmt.Fprintf(buf, "    <p id=\"summary\">%s</p>\n", html.EscapeString(d.Meta.Summary))
	fmt.Fprintf(buf, "    <p id=\"author\">%s</p>\n", html.EscapeString(d.Meta.Author))
	fmt.Fprintf(buf, "    <a id=\"homepage\" href=\"%s\">%s</a>\n",
		html.EscapeString(d.Meta.Homepage), html.EscapeString(d.Meta.Homepage))
	buf.WriteString("  </section>\n")
}

func (d *Document) renderInstall(buf *bytes.Buffer) {
	buf.WriteString("  <section class=\"install\" id=\"install\">\n")
	buf.WriteString("    ")
	buf.Write(d.installCommand())
	buf.WriteString("\n  </section>\n")
}

// installCommand renders the pip instruction block.
func (d *Document) installCommand() []byte {
	indexURL := strings.TrimSuffix(d.IndexURL, "/") + "/"
	command := fmt.Sprintf("pip install --extra-index-url %s %s", indexURL, d.Name)
	if d.RequiresAuth() {
		// Private source repository: the index host still serves the page,
		// but artifact downloads need repository credentials.
		command = fmt.Sprintf("pip install --extra-index-url https://${GITHUB_TOKEN}@%s %s",
			strings.TrimPrefix(strings.TrimPrefix(indexURL, "https://"), "http://"), d.Name)
	}

	return []byte(fmt.Sprintf("<pre id=\"install-command\" data-index-url=\"%s\">%s</pre>",
		html.EscapeString(indexURL), html.EscapeString(command)))
}

func (d *Document) renderVersions(buf *bytes.Buffer) {
	buf.WriteString("  <section class=\"versions\" id=\"versions\">\n")
	for _, entry := range d.Entries {
		buf.WriteString("    ")
		if entry.raw != nil {
			buf.Write(entry.raw)
		} else {
			buf.Write(renderEntry(entry))
		}
		buf.WriteString("\n")
	}
	buf.WriteString("  </section>\n")
}

// renderEntry produces the canonical markup for one version entry.
func renderEntry(entry VersionEntry) []byte {
	var buf bytes.Buffer

	class := "version"
	if entry.Main {
		class = "version main"
	}
	canonical := entry.Record.Canonical()

	fmt.Fprintf(&buf, "<div class=\"%s\" id=\"%s\" data-kind=\"%s\" data-requires-auth=\"%t\">\n",
		class, html.EscapeString(canonical), entry.Kind, entry.RequiresAuth)

	if entry.Main {
		fmt.Fprintf(&buf, "      <h2>%s <span class=\"badge\">latest</span></h2>\n",
			html.EscapeString(canonical))
	} else {
		fmt.Fprintf(&buf, "      <h2>%s</h2>\n", html.EscapeString(canonical))
	}

	label := entry.Title
	if label == "" {
		label = "install from source control"
	}
	if entry.Title != "" {
		fmt.Fprintf(&buf, "      <a href=\"%s\" title=\"%s\">%s</a>\n",
			html.EscapeString(entry.DownloadRef), html.EscapeString(entry.Title), html.EscapeString(label))
	} else {
		fmt.Fprintf(&buf, "      <a href=\"%s\">%s</a>\n",
			html.EscapeString(entry.DownloadRef), html.EscapeString(label))
	}

	buf.WriteString("    </div>")
	return buf.Bytes()
}

// displayTitle derives a human heading from a package name.
func displayTitle(name string) string {
	words := strings.ReplaceAll(name, "-", " ")
	return cases.Title(language.English).String(words)
}
