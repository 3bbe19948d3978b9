package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askBaseURL     string
	askTemperature float32
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the command line",
	Long: `Runs the full pipeline locally: embeds the question, retrieves and expands
context, asks the chat model and prints the answer with its documents.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askBaseURL, "base-url", "http://localhost:8000/", "base URL used in viewer links")
	askCmd.Flags().Float32VarP(&askTemperature, "temperature", "t", 0, "sampling temperature (0-2)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the structured result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return errors.New("question must not be empty")
	}
	if askTemperature < 0 || askTemperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", askTemperature)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, cfg)

	ctx := cmd.Context()
	svc, closeFn, err := newAnswerer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			slog.Warn("failed to release resources", "error", err)
		}
	}()

	if cfg.LLMTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.LLMTimeout())
		defer cancel()
	}

	res, err := svc.Answer(ctx, question, askBaseURL, askTemperature)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.DisplayText())
	return nil
}
