package main

import (
	"log/slog"
	"os"

	"github.com/iskochergin/qletovo/internal/cli"
	"github.com/iskochergin/qletovo/internal/logger"
)

func main() {
	// Commands reinstall the logger once the configured level is known.
	slog.SetDefault(logger.New(os.Stderr, slog.LevelInfo))

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
