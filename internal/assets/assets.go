// Package assets scaffolds the static pieces of a registry checkout:
// the stylesheets the rendered documents link to, and an empty
// top-level index for a brand-new registry.
package assets

import (
	"os"
	"path/filepath"

	"github.com/simple-index-project/sipub/internal/index"
	"github.com/simple-index-project/sipub/internal/ops"
)

const indexCSS = `body {
  font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
  max-width: 720px;
  margin: 2rem auto;
  padding: 0 1rem;
  color: #1f2328;
}

h1 {
  border-bottom: 1px solid #d0d7de;
  padding-bottom: 0.5rem;
}

.card {
  display: block;
  padding: 0.75rem 1rem;
  margin: 0.5rem 0;
  border: 1px solid #d0d7de;
  border-radius: 6px;
  text-decoration: none;
  color: inherit;
}

.card:hover {
  background: #f6f8fa;
}

.card .summary {
  display: block;
  color: #57606a;
  font-size: 0.875rem;
  margin-top: 0.25rem;
}
`

const packageCSS = `body {
  font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
  max-width: 720px;
  margin: 2rem auto;
  padding: 0 1rem;
  color: #1f2328;
}

.header h1 {
  margin-bottom: 0.25rem;
}

.header p {
  margin: 0.25rem 0;
  color: #57606a;
}

#install-command {
  background: #f6f8fa;
  border: 1px solid #d0d7de;
  border-radius: 6px;
  padding: 0.75rem 1rem;
  overflow-x: auto;
}

.version {
  border: 1px solid #d0d7de;
  border-radius: 6px;
  padding: 0.5rem 1rem;
  margin: 0.5rem 0;
}

.version.main {
  border-color: #1a7f37;
}

.badge {
  font-size: 0.75rem;
  color: #ffffff;
  background: #1a7f37;
  border-radius: 1rem;
  padding: 0.1rem 0.5rem;
  margin-left: 0.5rem;
  vertical-align: middle;
}
`

// Scaffold produces the mutation that bootstraps a registry checkout
// under root: both stylesheets, plus an empty index document if none
// exists yet. An existing index is never touched.
func Scaffold(root string) (*ops.Mutation, error) {
	mut := &ops.Mutation{}
	mut.Add(ops.FileChange{Path: filepath.Join("static", "index.css"), Content: []byte(indexCSS)})
	mut.Add(ops.FileChange{Path: filepath.Join("static", "package.css"), Content: []byte(packageCSS)})

	if _, err := os.Stat(filepath.Join(root, "index.html")); os.IsNotExist(err) {
		mut.Add(ops.FileChange{Path: "index.html", Content: index.New().Render()})
	} else if err != nil {
		return nil, err
	}

	return mut, nil
}
