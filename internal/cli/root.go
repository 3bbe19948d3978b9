package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iskochergin/qletovo/internal/app"
	"github.com/iskochergin/qletovo/internal/config"
	"github.com/iskochergin/qletovo/internal/logger"
	"github.com/iskochergin/qletovo/internal/rag"
)

// Answerer is the part of the pipeline the ask command needs.
type Answerer interface {
	Answer(ctx context.Context, question, baseURL string, temperature float32) (*rag.Result, error)
}

// Replaced in tests.
var (
	loadConfig  = config.Load
	newAnswerer = func(ctx context.Context, cfg *config.Config) (Answerer, func() error, error) {
		deps, err := app.Bootstrap(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return app.NewService(cfg, deps), deps.Close, nil
	}
)

var rootCmd = &cobra.Command{
	Use:   "qletovo",
	Short: "Sourced question answering over Letovo school documents",
	Long: `qletovo answers questions about a fixed collection of PDF documents.
Answers cite the document and page they come from.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// setupLogging installs the JSON logger at the configured level.
func setupLogging(w io.Writer, cfg *config.Config) {
	slog.SetDefault(logger.New(w, cfg.SlogLevel()))
}
