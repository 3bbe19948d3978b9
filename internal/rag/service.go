package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iskochergin/qletovo/internal/retrieval"
	"github.com/iskochergin/qletovo/internal/settings"
)

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Hit, error)
}

// Completer sends one system and one user message to a chat model and
// returns its raw text.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float32) (string, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type TokenCounter interface {
	Count(text string) int
}

type Service struct {
	searcher  Searcher
	completer Completer
	assembler *Assembler
	settings  SettingsProvider
	defaults  Options
	tokens    TokenCounter
}

func NewService(searcher Searcher, completer Completer, assembler *Assembler, provider SettingsProvider, defaults Options) *Service {
	return &Service{
		searcher:  searcher,
		completer: completer,
		assembler: assembler,
		settings:  provider,
		defaults:  defaults,
	}
}

// WithTokenCounter enables prompt size logging.
func (s *Service) WithTokenCounter(tc TokenCounter) *Service {
	s.tokens = tc
	return s
}

// options reads the current settings, falling back to the configured
// defaults when the store is unavailable or holds invalid values.
func (s *Service) options(ctx context.Context) Options {
	if s.settings == nil {
		return s.defaults
	}
	set, err := s.settings.Get(ctx)
	if err == nil {
		err = set.Validate()
	}
	if err != nil {
		slog.WarnContext(ctx, "using default retrieval settings", "error", err)
		return s.defaults
	}
	return OptionsFromSettings(set)
}

// Answer runs the full pipeline for one question. Only embedding and
// completion failures are returned as errors; malformed model output
// yields a Result with StatusError.
func (s *Service) Answer(ctx context.Context, question, baseURL string, temperature float32) (*Result, error) {
	start := time.Now()
	opts := s.options(ctx)

	hits, err := s.searcher.Search(ctx, question, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	ranked := make([]int, len(hits))
	for i, h := range hits {
		ranked[i] = h.Index
	}
	seeds := seedsOf(ranked, opts.BestK)

	contextText, expanded := s.assembler.Assemble(seeds, baseURL, opts)

	var items []string
	if NeedsFullList(question) {
		items = s.assembler.Harvest(expanded)
	}
	_, scoreHint := ExtractScores(question)

	user := BuildUserPrompt(contextText, question, items, scoreHint)
	if s.tokens != nil && slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.DebugContext(ctx, "prompt assembled",
			"tokens", s.tokens.Count(SystemPrompt)+s.tokens.Count(user),
			"chunks", len(expanded),
			"harvested", len(items))
	}

	raw, err := s.completer.Complete(ctx, SystemPrompt, user, temperature)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	reply := Normalize(raw)
	if reply.Status == StatusError {
		slog.WarnContext(ctx, "model reply could not be parsed", "raw_len", len(raw))
	}

	res := Finalize(reply, func() []Source {
		return s.assembler.BuildSources(seeds, baseURL, opts.SourceLimit)
	})

	slog.InfoContext(ctx, "question answered",
		"status", res.Status,
		"hits", len(hits),
		"expanded", len(expanded),
		"sources", len(res.Sources),
		"duration", time.Since(start))
	return res, nil
}

func (s *Service) Manifest(baseURL string) []ManifestItem {
	return s.assembler.Manifest(baseURL)
}
