package retrieval

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryRecord is one line of the query log.
type QueryRecord struct {
	At           time.Time `json:"at"`
	Query        string    `json:"query"`
	K            int       `json:"k"`
	Hits         int       `json:"hits"`
	BestDistance *float64  `json:"best_distance,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
}

func newQueryRecord(query string, k int, hits []Hit, took time.Duration) QueryRecord {
	rec := QueryRecord{Query: query, K: k, Hits: len(hits), LatencyMs: took.Milliseconds()}
	if len(hits) > 0 {
		d := hits[0].Distance
		rec.BestDistance = &d
	}
	return rec
}

// QueryLog appends JSON lines describing searches. It is safe for
// concurrent use.
type QueryLog struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	closed bool
	now    func() time.Time
}

// NewQueryLog writes to w. Close does not close w.
func NewQueryLog(w io.Writer) *QueryLog {
	return &QueryLog{enc: json.NewEncoder(w), now: time.Now}
}

// OpenQueryLog appends to the file at path, creating it and its directory
// when missing. The file is closed by Close.
func OpenQueryLog(path string) (*QueryLog, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, err
	}
	l := NewQueryLog(f)
	l.closer = f
	return l, nil
}

// Record writes rec, stamping it with the current time. Records after Close
// are dropped.
func (l *QueryLog) Record(rec QueryRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	rec.At = l.now().UTC()
	if err := l.enc.Encode(rec); err != nil {
		slog.Error("query log write failed", "error", err)
	}
}

func (l *QueryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
