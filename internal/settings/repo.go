package settings

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, top_k, best_k, page_window, max_snippet, source_limit FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.TopK, &s.BestK, &s.PageWindow, &s.MaxSnippet, &s.SourceLimit)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET top_k = $1, best_k = $2, page_window = $3, max_snippet = $4, source_limit = $5, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.TopK, s.BestK, s.PageWindow, s.MaxSnippet, s.SourceLimit)
	return err
}

// Seed writes defaults into the singleton row unless it already exists.
func (r *PostgresRepo) Seed(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, top_k, best_k, page_window, max_snippet, source_limit)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, s.TopK, s.BestK, s.PageWindow, s.MaxSnippet, s.SourceLimit)
	return err
}

// MemoryRepo keeps settings in process when no database is configured.
type MemoryRepo struct {
	mu  sync.RWMutex
	cur Settings
	set bool
}

func NewMemoryRepo(initial *Settings) *MemoryRepo {
	r := &MemoryRepo{}
	if initial != nil {
		r.cur = *initial
		r.cur.ID = 1
		r.set = true
	}
	return r
}

func (r *MemoryRepo) Get(_ context.Context) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.set {
		return nil, errors.New("settings not initialised")
	}
	s := r.cur
	return &s, nil
}

func (r *MemoryRepo) Update(_ context.Context, s *Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = *s
	r.cur.ID = 1
	r.set = true
	return nil
}
