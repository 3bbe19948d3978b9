// Package corpus holds the immutable, process-loaded collection of chunk
// records and the dense embedding matrix aligned with them row by row.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrShapeMismatch is returned when the vector matrix row count differs
	// from the number of chunks. It is a fatal startup condition.
	ErrShapeMismatch = errors.New("vector matrix does not match chunk count")

	// ErrRaggedRows is returned when matrix rows have different widths.
	ErrRaggedRows = errors.New("vector matrix rows have different dimensions")
)

// Page is a 1-based page number. Zero means the chunk carries no page.
type Page int

// UnmarshalJSON accepts integers, floats, numeric strings and null.
// Anything else decodes to zero instead of failing the whole corpus.
func (p *Page) UnmarshalJSON(data []byte) error {
	*p = Page(coerceInt(data))
	return nil
}

func coerceInt(data []byte) int {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return 0
	}
	s = strings.Trim(s, `"`)
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return 0
}

// DocID identifies the source document of a chunk. Index files written by
// different tools store it either as a string or as a number.
type DocID string

func (d *DocID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = DocID(s)
		return nil
	}
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*d = ""
		return nil
	}
	*d = DocID(raw)
	return nil
}

// Chunk is the smallest retrievable unit of document text.
type Chunk struct {
	Text      string `json:"text"`
	DocID     DocID  `json:"doc_id"`
	Page      Page   `json:"page"`
	Title     string `json:"title,omitempty"`
	LocalName string `json:"local_name,omitempty"`
	Path      string `json:"path,omitempty"`
}

// ManifestEntry describes one known source document.
type ManifestEntry struct {
	DocID     DocID  `json:"doc_id"`
	Title     string `json:"title"`
	LocalName string `json:"local_name,omitempty"`
	Path      string `json:"path,omitempty"`
}

// Store is read-only after construction and safe for concurrent use.
type Store struct {
	chunks   []Chunk
	rows     [][]float32
	norms    []float64
	dim      int
	manifest []ManifestEntry
	byDoc    map[DocID][]int
}

// New builds a store from already decoded parts.
func New(chunks []Chunk, rows [][]float32, manifest []ManifestEntry) (*Store, error) {
	if len(chunks) != len(rows) {
		return nil, fmt.Errorf("%w: %d chunks, %d rows", ErrShapeMismatch, len(chunks), len(rows))
	}

	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0])
	}
	norms := make([]float64, len(rows))
	byDoc := make(map[DocID][]int)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d, want %d", ErrRaggedRows, i, len(row), dim)
		}
		var sum float64
		for _, v := range row {
			sum += float64(v) * float64(v)
		}
		norms[i] = math.Sqrt(sum)
		byDoc[chunks[i].DocID] = append(byDoc[chunks[i].DocID], i)
	}

	return &Store{
		chunks:   chunks,
		rows:     rows,
		norms:    norms,
		dim:      dim,
		manifest: manifest,
		byDoc:    byDoc,
	}, nil
}

func (s *Store) Len() int { return len(s.chunks) }

// Dim is the embedding width, zero for an empty corpus.
func (s *Store) Dim() int { return s.dim }

func (s *Store) Chunk(i int) Chunk { return s.chunks[i] }

func (s *Store) Row(i int) []float32 { return s.rows[i] }

// Norm returns the precomputed L2 norm of row i.
func (s *Store) Norm(i int) float64 { return s.norms[i] }

// ChunksForDoc returns the indices of every chunk of a document in corpus
// order. The returned slice must not be modified.
func (s *Store) ChunksForDoc(id DocID) []int { return s.byDoc[id] }

// Manifest returns the document list, empty when no manifest was loaded.
func (s *Store) Manifest() []ManifestEntry { return s.manifest }
