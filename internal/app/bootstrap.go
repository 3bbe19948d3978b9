package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/iskochergin/qletovo/internal/adapter/gemini"
	"github.com/iskochergin/qletovo/internal/adapter/tokens"
	"github.com/iskochergin/qletovo/internal/config"
	"github.com/iskochergin/qletovo/internal/corpus"
	"github.com/iskochergin/qletovo/internal/docs"
	"github.com/iskochergin/qletovo/internal/rag"
	"github.com/iskochergin/qletovo/internal/retrieval"
	"github.com/iskochergin/qletovo/internal/settings"
)

// Dependencies are the process-wide resources built at startup.
type Dependencies struct {
	Store     *corpus.Store
	Resolver  *docs.Resolver
	Embedder  retrieval.Embedder
	Completer rag.Completer
	Tokens    rag.TokenCounter
	Settings  settings.Repository
	QueryLog  *retrieval.QueryLog

	closers []func() error
}

// Close releases the model client and database handle.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// Bootstrap loads the corpus, opens the model client and selects the
// settings store.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	store, err := corpus.Load(cfg.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}

	counter := tokens.NewCounter(cfg.TokenizerModel)
	if !counter.Load() {
		slog.InfoContext(ctx, "prompt sizes will be estimated", "model", cfg.TokenizerModel)
	}

	deps := &Dependencies{
		Store:    store,
		Resolver: docs.NewResolver(cfg.DocsDir),
		Tokens:   counter,
	}

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, client.Close)
	deps.Embedder = gemini.NewEmbedder(client, cfg.GeminiEmbedModel)
	deps.Completer = gemini.NewCompleter(client, cfg.GeminiChatModel)

	repo, err := SettingsRepository(ctx, cfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Settings = repo

	deps.QueryLog = OpenQueryLog(cfg, deps)
	return deps, nil
}

// OpenQueryLog opens the configured query log and registers it for Close.
// It falls back to stdout when the file cannot be opened.
func OpenQueryLog(cfg *config.Config, deps *Dependencies) *retrieval.QueryLog {
	ql, err := retrieval.OpenQueryLog(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("query log unavailable, writing to stdout", "path", cfg.QueryLogPath, "error", err)
		return retrieval.NewQueryLog(os.Stdout)
	}
	deps.closers = append(deps.closers, ql.Close)
	return ql
}

// SettingsRepository returns a Postgres-backed store when DB_HOST is set and
// an in-memory one otherwise. Both start from the configured defaults.
func SettingsRepository(ctx context.Context, cfg *config.Config, deps *Dependencies) (settings.Repository, error) {
	defaults := cfg.RetrievalDefaults()
	if cfg.DBHost == "" {
		slog.Info("settings kept in memory", "reason", "DB_HOST not set")
		return settings.NewMemoryRepo(defaults), nil
	}

	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if deps != nil {
		deps.closers = append(deps.closers, db.Close)
	}

	repo := settings.NewPostgresRepo(db)
	if err := repo.Seed(ctx, defaults); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return repo, nil
}

// OpenDB connects to Postgres with retry and applies migrations.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBName)
	if cfg.DBPass != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.DBPass)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := PingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied", "path", cfg.MigrationPath)
	return db, nil
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingWithRetry pings up to attempts times, sleeping delay between tries.
func PingWithRetry(ctx context.Context, db Pinger, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
