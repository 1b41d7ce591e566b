package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Structured field extraction from free-text documents with LLMs",
	Long: `Quarry mines structured fields out of free-text documents using an LLM.

Given a field schema and a stream of documents, it:
  - Splits the schema into per-request field chunks
  - Extracts each document with bounded concurrency and retries
  - Anchors claimed evidence snippets back to the source text
  - Records every result to a JSONL ledger so interrupted runs resume
    where they left off`,
	Version: version.GitRelease,
}

func init() {
	// Load .env file if exists
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./quarry.yaml or ~/.quarry/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(schemaCmd)
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
