package settings

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid settings")

// Upper bounds keep a single request's work proportional to the corpus.
const (
	MaxTopK        = 1000
	MaxPageWindow  = 50
	MaxSnippet     = 20000
	MaxSourceLimit = 50
)

// Settings are the retrieval knobs that can be tuned at runtime.
type Settings struct {
	ID          int `json:"-"`
	TopK        int `json:"top_k"`
	BestK       int `json:"best_k"`
	PageWindow  int `json:"page_window"`
	MaxSnippet  int `json:"max_snippet"`
	SourceLimit int `json:"source_limit"`
}

func (s *Settings) Validate() error {
	switch {
	case s.TopK < 1 || s.TopK > MaxTopK:
		return fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalid, MaxTopK)
	case s.BestK < 1 || s.BestK > s.TopK:
		return fmt.Errorf("%w: best_k must be between 1 and top_k", ErrInvalid)
	case s.PageWindow < 0 || s.PageWindow > MaxPageWindow:
		return fmt.Errorf("%w: page_window must be between 0 and %d", ErrInvalid, MaxPageWindow)
	case s.MaxSnippet < 1 || s.MaxSnippet > MaxSnippet:
		return fmt.Errorf("%w: max_snippet must be between 1 and %d", ErrInvalid, MaxSnippet)
	case s.SourceLimit < 1 || s.SourceLimit > MaxSourceLimit:
		return fmt.Errorf("%w: source_limit must be between 1 and %d", ErrInvalid, MaxSourceLimit)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}
