package rag

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/iskochergin/qletovo/internal/corpus"
	"github.com/iskochergin/qletovo/internal/docs"
	"github.com/iskochergin/qletovo/internal/settings"
)

const (
	defaultTitle    = "Документ"
	pagePlaceholder = "—"
	blockSeparator  = "\n\n---\n\n"
	ellipsis        = "…"
)

// Options are the per-request retrieval knobs.
type Options struct {
	TopK        int
	BestK       int
	PageWindow  int
	MaxSnippet  int
	SourceLimit int
}

func OptionsFromSettings(s *settings.Settings) Options {
	return Options{
		TopK:        s.TopK,
		BestK:       s.BestK,
		PageWindow:  s.PageWindow,
		MaxSnippet:  s.MaxSnippet,
		SourceLimit: s.SourceLimit,
	}
}

// Assembler turns ranked chunk indices into prompt context and citations.
type Assembler struct {
	store    *corpus.Store
	resolver *docs.Resolver
}

func NewAssembler(store *corpus.Store, resolver *docs.Resolver) *Assembler {
	return &Assembler{store: store, resolver: resolver}
}

// ExpandByPages adds every chunk of a seed's document whose page lies
// within window pages of any seed page of that document. Seeds without a
// page do not act as centers. The result is sorted by chunk index. Work is
// linear in the chunks of the seed documents, independent of window.
func (a *Assembler) ExpandByPages(seeds []int, window int) []int {
	selected := make(map[int]struct{}, len(seeds))
	centers := make(map[corpus.DocID][]int)
	var order []corpus.DocID

	for _, i := range seeds {
		selected[i] = struct{}{}
		ch := a.store.Chunk(i)
		pages, ok := centers[ch.DocID]
		if !ok {
			order = append(order, ch.DocID)
		}
		if ch.Page > 0 {
			pages = append(pages, int(ch.Page))
		}
		centers[ch.DocID] = pages
	}

	for _, doc := range order {
		pages := centers[doc]
		if len(pages) == 0 {
			continue
		}
		for _, j := range a.store.ChunksForDoc(doc) {
			if nearAny(int(a.store.Chunk(j).Page), pages, window) {
				selected[j] = struct{}{}
			}
		}
	}

	out := make([]int, 0, len(selected))
	for i := range selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func nearAny(page int, centers []int, window int) bool {
	for _, c := range centers {
		d := page - c
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

// Assemble expands the first BestK hits and renders each resulting chunk
// as a citation header followed by its snippet.
func (a *Assembler) Assemble(hits []int, baseURL string, opts Options) (string, []int) {
	expanded := a.ExpandByPages(seedsOf(hits, opts.BestK), opts.PageWindow)

	blocks := make([]string, 0, len(expanded))
	for _, i := range expanded {
		ch := a.store.Chunk(i)
		title := firstNonEmpty(ch.Title, ch.LocalName, defaultTitle)
		page := pagePlaceholder
		if ch.Page > 0 {
			page = strconv.Itoa(int(ch.Page))
		}
		url := a.resolver.ViewerURL(baseURL, a.resolver.LocalName(ch), int(ch.Page))
		blocks = append(blocks, fmt.Sprintf("[%s; стр. %s; файл: %s]\n%s", title, page, url, snippet(ch.Text, opts.MaxSnippet)))
	}
	return strings.Join(blocks, blockSeparator), expanded
}

type sourceKey struct {
	title string
	page  corpus.Page
}

// BuildSources returns up to limit citations in ranked order, one per
// distinct (title, page) pair.
func (a *Assembler) BuildSources(hits []int, baseURL string, limit int) []Source {
	out := []Source{}
	seen := make(map[sourceKey]struct{})
	for _, i := range hits {
		if len(out) >= limit {
			break
		}
		ch := a.store.Chunk(i)
		key := sourceKey{ch.Title, ch.Page}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		local := a.resolver.LocalName(ch)
		page := int(ch.Page)
		if page <= 0 {
			page = 1
		}
		out = append(out, Source{
			Title: firstNonEmpty(ch.Title, local, defaultTitle),
			Page:  page,
			URL:   a.resolver.ViewerURL(baseURL, local, page),
		})
	}
	return out
}

// ManifestItem is a document listed for clients.
type ManifestItem struct {
	DocID     corpus.DocID `json:"doc_id"`
	Title     string       `json:"title"`
	LocalName string       `json:"local_name"`
	URL       string       `json:"url"`
}

// Manifest lists manifest documents present in the document directory.
func (a *Assembler) Manifest(baseURL string) []ManifestItem {
	out := []ManifestItem{}
	for _, m := range a.store.Manifest() {
		local, ok := a.resolver.Resolve(docs.RequestedName(m))
		if !ok {
			continue
		}
		out = append(out, ManifestItem{
			DocID:     m.DocID,
			Title:     m.Title,
			LocalName: local,
			URL:       a.resolver.ViewerURL(baseURL, local, 0),
		})
	}
	return out
}

func seedsOf(hits []int, bestK int) []int {
	if bestK >= 0 && len(hits) > bestK {
		return hits[:bestK]
	}
	return hits
}

func snippet(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + ellipsis
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
