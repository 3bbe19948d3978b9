package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iskochergin/qletovo/internal/corpus"
	"github.com/iskochergin/qletovo/internal/docs"
	"github.com/iskochergin/qletovo/internal/rag"
)

var (
	docsManifest bool
	docsBaseURL  string
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List available documents",
	Long: `Lists the PDF files in the document directory. With --manifest, lists
the indexed documents that resolve to a local file, with viewer links.`,
	Args: cobra.NoArgs,
	RunE: runDocs,
}

func init() {
	docsCmd.Flags().BoolVar(&docsManifest, "manifest", false, "list indexed documents as JSON")
	docsCmd.Flags().StringVar(&docsBaseURL, "base-url", "http://localhost:8000/", "base URL used in viewer links")
	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, cfg)

	if !docsManifest {
		names := docs.ListPDFs(cfg.DocsDir)
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	store, err := corpus.Load(cfg.IndexDir)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	items := rag.NewAssembler(store, docs.NewResolver(cfg.DocsDir)).Manifest(docsBaseURL)

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
