package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iskochergin/qletovo/features/ask"
	"github.com/iskochergin/qletovo/features/mcp"
	"github.com/iskochergin/qletovo/features/stats"
	"github.com/iskochergin/qletovo/features/viewer"
	"github.com/iskochergin/qletovo/internal/config"
	"github.com/iskochergin/qletovo/internal/docs"
	"github.com/iskochergin/qletovo/internal/middleware"
	"github.com/iskochergin/qletovo/internal/quota"
	"github.com/iskochergin/qletovo/internal/rag"
	"github.com/iskochergin/qletovo/internal/retrieval"
	"github.com/iskochergin/qletovo/internal/settings"
)

type App struct {
	Handler http.Handler
	Service *rag.Service
	port    int
}

// NewService wires the answering pipeline without any HTTP surface.
func NewService(cfg *config.Config, deps *Dependencies) *rag.Service {
	retrievalService := retrieval.NewService(deps.Embedder, deps.Store, deps.QueryLog)
	assembler := rag.NewAssembler(deps.Store, deps.Resolver)
	defaults := rag.OptionsFromSettings(cfg.RetrievalDefaults())

	var provider rag.SettingsProvider
	if deps.Settings != nil {
		provider = settings.NewService(deps.Settings)
	}
	svc := rag.NewService(retrievalService, deps.Completer, assembler, provider, defaults)
	if deps.Tokens != nil {
		svc.WithTokenCounter(deps.Tokens)
	}
	return svc
}

func New(cfg *config.Config, deps *Dependencies) *App {
	svc := NewService(cfg, deps)

	// Feature: Ask
	limiter := quota.NewStore(cfg.AskInterval(), cfg.AskDailyLimit)
	askHandler := ask.NewHandler(svc, limiter, cfg.LLMTimeout())

	// Feature: MCP
	mcpHandler := mcp.NewHandler(svc, cfg.LLMTimeout())

	// Feature: Viewer
	viewerHandler := viewer.NewHandler(deps.Resolver)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /ask", askHandler.Ask)
	mux.HandleFunc("GET /manifest", askHandler.Manifest)
	mux.HandleFunc("GET /health", askHandler.Health)

	// Feature: Settings
	var settingsReader stats.SettingsReader
	if deps.Settings != nil {
		settingsService := settings.NewService(deps.Settings)
		settingsReader = settingsService
		settingsHandler := settings.NewHandler(settingsService)
		mux.HandleFunc("GET /settings", settingsHandler.GetSettings)
		mux.HandleFunc("PUT /settings", settingsHandler.UpdateSettings)
	}

	// Feature: Stats
	statsHandler := stats.NewHandler(deps.Store, settingsReader, func() []string {
		return docs.ListPDFs(deps.Resolver.Dir())
	})
	mux.HandleFunc("GET /stats", statsHandler.GetStats)

	mux.Handle("POST /mcp", mcpHandler)

	mux.HandleFunc("GET /{$}", viewerHandler.Index)
	mux.HandleFunc("GET /viewer/{name}", viewerHandler.View)
	mux.Handle("GET /files/", viewerHandler.Files())

	handler := middleware.CorrelationID(mux)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)

	return &App{Handler: handler, Service: svc, port: cfg.ServerPort}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
