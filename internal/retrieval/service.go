package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iskochergin/qletovo/internal/corpus"
)

// ErrDimensionMismatch is returned when the query embedding width differs
// from the corpus matrix.
var ErrDimensionMismatch = errors.New("query embedding dimension does not match corpus")

// parallelThreshold is the corpus size above which the scan is split
// across goroutines.
const parallelThreshold = 4096

// Hit is one ranked chunk. Similarity is exactly 1 - Distance.
type Hit struct {
	Index      int     `json:"index"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service ranks corpus chunks by cosine distance with a full scan.
type Service struct {
	embedder Embedder
	store    *corpus.Store
	log      *QueryLog
}

// NewService ranks against s. A nil log disables query logging.
func NewService(e Embedder, s *corpus.Store, l *QueryLog) *Service {
	return &Service{embedder: e, store: s, log: l}
}

// Search embeds query and returns the k nearest chunks in ascending
// distance order, ties broken by corpus order. Embedding errors are
// returned as is; there is no retry here.
func (s *Service) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	start := time.Now()
	var hits []Hit
	var err error

	defer func() {
		if s.log != nil && err == nil {
			s.log.Record(newQueryRecord(query, k, hits, time.Since(start)))
		}
	}()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err = s.Rank(ctx, vec, k)
	return hits, err
}

// Rank scores an already embedded query against every row.
func (s *Service) Rank(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	n := s.store.Len()
	if n == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(vec) != s.store.Dim() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.store.Dim())
	}

	var qn float64
	for _, v := range vec {
		qn += float64(v) * float64(v)
	}
	qn = math.Sqrt(qn)

	dist := make([]float64, n)
	if err := s.scan(ctx, vec, qn, dist); err != nil {
		return nil, err
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dist[order[a]] < dist[order[b]]
	})

	if k > n {
		k = n
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		hits[i] = Hit{Index: idx, Distance: dist[idx], Similarity: 1 - dist[idx]}
	}
	return hits, nil
}

func (s *Service) scan(ctx context.Context, vec []float32, qn float64, dist []float64) error {
	n := len(dist)
	if n < parallelThreshold {
		s.scanRange(vec, qn, dist, 0, n)
		return nil
	}

	workers := runtime.NumCPU()
	size := (n + workers - 1) / workers
	g, gCtx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			s.scanRange(vec, qn, dist, lo, hi)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) scanRange(vec []float32, qn float64, dist []float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		dist[i] = cosineDistance(vec, qn, s.store.Row(i), s.store.Norm(i))
	}
}

// cosineDistance treats zero vectors as orthogonal to everything.
func cosineDistance(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(an*bn)
}
