package index

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAddEntryAndRender(t *testing.T) {
	doc := New()
	doc.AddEntry("zebra", "last alphabetically")
	doc.AddEntry("alpha-pkg", "first alphabetically")
	doc.AddEntry("middle", "in between")

	names := doc.Names()
	want := []string{"alpha-pkg", "middle", "zebra"}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("position %d = %s, want %s", i, names[i], w)
		}
	}

	out := doc.Render()
	if !strings.Contains(string(out), `id="alpha-pkg"`) {
		t.Error("rendered index missing alpha-pkg card")
	}

	// Cards link to the package page directory.
	if !strings.Contains(string(out), `href="middle/"`) {
		t.Error("card link does not point at package page")
	}
}

func TestAddEntryIdempotent(t *testing.T) {
	doc := New()
	doc.AddEntry("demo", "a package")
	once := doc.Render()

	doc.AddEntry("demo", "a package")
	twice := doc.Render()

	if !bytes.Equal(once, twice) {
		t.Errorf("adding an identical entry twice changed the document:\n%s\nvs\n%s", once, twice)
	}
	if len(doc.Entries) != 1 {
		t.Errorf("got %d entries, want 1", len(doc.Entries))
	}
}

func TestParseRoundTrip(t *testing.T) {
	doc := New()
	doc.AddEntry("demo", "a package")
	doc.AddEntry("other", "another package")
	out := doc.Render()

	parsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(parsed.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(parsed.Entries))
	}
	if parsed.Entries[0].Name != "demo" || parsed.Entries[0].Summary != "a package" {
		t.Errorf("first entry = %+v", parsed.Entries[0])
	}

	// A parse/render cycle is byte-identical.
	again := parsed.Render()
	if !bytes.Equal(out, again) {
		t.Errorf("parse/render cycle is not byte-identical:\n%s\nvs\n%s", out, again)
	}
}

func TestAddPreservesExistingCards(t *testing.T) {
	doc := New()
	doc.AddEntry("demo", "a package")
	out := doc.Render()

	parsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	originalCard := append([]byte(nil), parsed.Entries[0].raw...)

	parsed.AddEntry("newpkg", "newly registered")
	updated := parsed.Render()

	if !bytes.Contains(updated, originalCard) {
		t.Error("existing card markup was not preserved")
	}
}

func TestRenderPreservesShellMarkup(t *testing.T) {
	doc := New()
	doc.AddEntry("demo", "a package")
	out := doc.Render()

	// A maintainer edits the heading and adds a footer by hand.
	edited := strings.Replace(string(out),
		"<h1>Simple Package Index</h1>", "<h1>Acme Internal Index</h1>", 1)
	edited = strings.Replace(edited, "</body>",
		"  <footer>contact: tools@acme.example</footer>\n</body>", 1)

	parsed, err := Parse([]byte(edited))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	parsed.AddEntry("newpkg", "newly registered")
	updated := string(parsed.Render())

	if !strings.Contains(updated, "<h1>Acme Internal Index</h1>") {
		t.Error("hand-edited heading was dropped")
	}
	if !strings.Contains(updated, "<footer>contact: tools@acme.example</footer>") {
		t.Error("footer outside the card list was dropped")
	}
	if !strings.Contains(updated, `id="newpkg"`) {
		t.Error("new card missing from the updated index")
	}
}

func TestRemoveEntry(t *testing.T) {
	doc := New()
	doc.AddEntry("demo", "a package")
	doc.AddEntry("other", "another package")

	if err := doc.RemoveEntry("demo"); err != nil {
		t.Fatalf("RemoveEntry returned error: %v", err)
	}

	out := doc.Render()
	if strings.Contains(string(out), `id="demo"`) {
		t.Error("removed entry still rendered")
	}
	if !doc.Has("other") {
		t.Error("sibling entry lost by removal")
	}
}

func TestRemoveEntryMissing(t *testing.T) {
	doc := New()
	if err := doc.RemoveEntry("ghost"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("<html><body><p>nothing here</p></body></html>"))
	if !errors.Is(err, ErrMalformedIndex) {
		t.Errorf("error = %v, want ErrMalformedIndex", err)
	}
}
