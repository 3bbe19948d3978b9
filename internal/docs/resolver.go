// Package docs maps document names recorded at index time to the files that
// actually exist in the document directory, and builds viewer links to them.
package docs

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/iskochergin/qletovo/internal/corpus"
)

// DefaultFileName is used when a chunk records neither a local name nor a path.
const DefaultFileName = "doc.pdf"

type entry struct {
	key    string // NFC form
	folded string
	actual string
}

// Resolver is built once from a directory listing and never refreshed.
type Resolver struct {
	dir     string
	exact   map[string]string
	entries []entry
}

// NewResolver scans dir. A missing directory yields an empty resolver.
func NewResolver(dir string) *Resolver {
	r := &Resolver{dir: dir, exact: make(map[string]string)}

	items, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("document directory not readable, filename index is empty", "dir", dir, "error", err)
		return r
	}

	fold := cases.Fold()
	for _, it := range items {
		if !it.Type().IsRegular() {
			continue
		}
		key := norm.NFC.String(it.Name())
		if _, dup := r.exact[key]; dup {
			continue
		}
		r.exact[key] = it.Name()
		r.entries = append(r.entries, entry{key: key, folded: fold.String(key), actual: it.Name()})
	}
	slog.Info("filename index built", "dir", dir, "files", len(r.entries))
	return r
}

// NewResolverFromNames builds a resolver over an explicit file list.
func NewResolverFromNames(names ...string) *Resolver {
	r := &Resolver{exact: make(map[string]string)}
	fold := cases.Fold()
	for _, name := range names {
		key := norm.NFC.String(name)
		if _, dup := r.exact[key]; dup {
			continue
		}
		r.exact[key] = name
		r.entries = append(r.entries, entry{key: key, folded: fold.String(key), actual: name})
	}
	return r
}

// Dir is the scanned document directory.
func (r *Resolver) Dir() string { return r.dir }

// Resolve returns the on-disk name for name. Exact NFC matches win over
// case-folded ones; among folded matches the first in listing order wins.
func (r *Resolver) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	key := norm.NFC.String(name)
	if actual, ok := r.exact[key]; ok {
		return actual, true
	}
	folded := cases.Fold().String(key)
	for _, e := range r.entries {
		if e.folded == folded {
			return e.actual, true
		}
	}
	return "", false
}

// LocalName resolves a chunk's recorded file name, falling back to the
// basename of its ingestion path.
func (r *Resolver) LocalName(ch corpus.Chunk) string {
	if actual, ok := r.Resolve(ch.LocalName); ok {
		return actual
	}
	return basename(ch.Path)
}

// RequestedName is the name a manifest entry refers to before resolution.
func RequestedName(m corpus.ManifestEntry) string {
	if m.LocalName != "" {
		return m.LocalName
	}
	return basename(m.Path)
}

func basename(p string) string {
	if p == "" {
		return DefaultFileName
	}
	// Index paths may come from either OS.
	p = strings.ReplaceAll(p, `\`, "/")
	b := path.Base(p)
	if b == "." || b == "/" {
		return DefaultFileName
	}
	return b
}

// ListPDFs returns the .pdf files in dir sorted case-insensitively.
func ListPDFs(dir string) []string {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, it := range items {
		if it.Type().IsRegular() && strings.EqualFold(filepath.Ext(it.Name()), ".pdf") {
			out = append(out, it.Name())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
