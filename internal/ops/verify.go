package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/simple-index-project/sipub/internal/index"
	"github.com/simple-index-project/sipub/internal/page"
)

// Verify checks the structural and referential invariants of the
// registry under root and returns one message per violation. An empty
// slice means the registry is consistent. Verification never mutates
// anything.
func Verify(root string) ([]string, error) {
	var problems []string

	data, err := os.ReadFile(filepath.Join(root, indexFile))
	if os.IsNotExist(err) {
		// An empty registry is consistent as long as no package
		// pages are lying around.
		orphans, err := findPageDirs(root, nil)
		if err != nil {
			return nil, err
		}
		for _, name := range orphans {
			problems = append(problems, fmt.Sprintf("package %s has a page but no index document exists", name))
		}
		return problems, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index document: %w", err)
	}

	idx, err := index.Parse(data)
	if err != nil {
		return nil, err
	}

	listed := make(map[string]bool)
	for _, name := range idx.Names() {
		listed[name] = true
		problems = append(problems, verifyPackage(root, name)...)
	}

	orphans, err := findPageDirs(root, listed)
	if err != nil {
		return nil, err
	}
	for _, name := range orphans {
		problems = append(problems, fmt.Sprintf("package %s has a page but no index entry", name))
	}

	return problems, nil
}

// verifyPackage checks one indexed package's page and artifacts.
func verifyPackage(root, name string) []string {
	var problems []string

	data, err := os.ReadFile(filepath.Join(root, name, indexFile))
	if err != nil {
		return []string{fmt.Sprintf("package %s is indexed but its page is unreadable: %v", name, err)}
	}

	doc, err := page.Parse(data)
	if err != nil {
		return []string{fmt.Sprintf("package %s page is malformed: %v", name, err)}
	}

	if doc.Name != name {
		problems = append(problems, fmt.Sprintf("package %s page declares name %s", name, doc.Name))
	}
	if len(doc.Entries) == 0 {
		problems = append(problems, fmt.Sprintf("package %s page lists no versions", name))
	}

	mains := 0
	for _, entry := range doc.Entries {
		if entry.Main {
			mains++
		}
		problems = append(problems, verifyEntry(root, name, entry)...)
	}
	if len(doc.Entries) > 0 && mains != 1 {
		problems = append(problems, fmt.Sprintf("package %s has %d default versions, want exactly 1", name, mains))
	}

	return problems
}

// verifyEntry checks that a hosted version's download reference points
// at an artifact that actually exists.
func verifyEntry(root, name string, entry page.VersionEntry) []string {
	if !entry.Kind.Hosted() {
		return nil
	}

	ref := entry.DownloadRef
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	rel := strings.TrimPrefix(ref, "../")
	if rel == ref || !strings.HasPrefix(rel, packagesDir+"/") {
		return []string{fmt.Sprintf("package %s version %s has an unexpected hosted reference %s", name, entry.Record.Canonical(), entry.DownloadRef)}
	}

	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
		return []string{fmt.Sprintf("package %s version %s references missing artifact %s", name, entry.Record.Canonical(), rel)}
	}
	return nil
}

// findPageDirs lists directories under root that look like package
// pages but are not in the listed set.
func findPageDirs(root string, listed map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry root: %w", err)
	}

	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == packagesDir || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.Name() == "static" {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, entry.Name(), indexFile)); err != nil {
			continue
		}
		if !listed[entry.Name()] {
			orphans = append(orphans, entry.Name())
		}
	}
	return orphans, nil
}
