package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/internal/batch"
	"github.com/quarrydev/quarry/internal/config"
	"github.com/quarrydev/quarry/internal/extract"
	"github.com/quarrydev/quarry/internal/ledger"
	"github.com/quarrydev/quarry/internal/providers"
	"github.com/quarrydev/quarry/internal/schema"
)

var (
	extractSchemaPath string
	extractInputPath  string
	extractOutputPath string
	extractFields     []string
	extractModel      string
	extractParallel   int
	extractMaxRetries int
	extractChunkSize  int
	extractOverwrite  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract schema fields from a batch of documents",
	Long: `Extract schema fields from a JSONL stream of documents.

Each input line is a document: {"id": "...", "text": "..."}.
Each output line is one document's result, appended as it completes.
Documents whose ids already appear in the output file are skipped, so an
interrupted run can simply be re-run with the same arguments.

Examples:
  quarry extract --schema tumor.yaml --input notes.jsonl --output results.jsonl
  quarry extract --schema tumor.yaml --input notes.jsonl --output results.jsonl \
    --fields tumor_size,tnm_stage --parallel 8 --chunk-size 4
  quarry extract --schema tumor.yaml --input notes.jsonl --output results.jsonl \
    --overwrite   # discard previous results and start over`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		if cmd.Flags().Changed("model") {
			cfg.Provider.Model = extractModel
		}
		if cmd.Flags().Changed("parallel") {
			cfg.Batch.Parallel = extractParallel
		}
		if cmd.Flags().Changed("max-retries") {
			cfg.Extraction.MaxRetries = extractMaxRetries
		}
		if cmd.Flags().Changed("chunk-size") {
			cfg.Extraction.MaxFieldsPerRequest = extractChunkSize
		}

		s, err := schema.Load(extractSchemaPath)
		if err != nil {
			return err
		}

		docs, err := readDocuments(extractInputPath)
		if err != nil {
			return err
		}

		completed := map[string]struct{}{}
		if !extractOverwrite {
			completed, err = ledger.LoadCompleted(extractOutputPath)
			if err != nil {
				return err
			}
		}
		skipped := 0
		for _, doc := range docs {
			if _, done := completed[doc.ID]; done {
				skipped++
			}
		}

		writer, err := ledger.NewWriter(extractOutputPath, extractOverwrite)
		if err != nil {
			return err
		}
		defer writer.Close()

		client := providers.NewOpenAIClient(providers.OpenAIConfig{
			APIKey:      config.ResolveEnvVars(cfg.Provider.APIKey),
			Model:       cfg.Provider.Model,
			BaseURL:     cfg.Provider.BaseURL,
			Temperature: cfg.Provider.Temperature,
			MaxTokens:   cfg.Provider.MaxTokens,
			Timeout:     time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		})

		ecfg := extract.Config{
			Schema:              s,
			Client:              client,
			Logger:              logger,
			MaxRetries:          cfg.Extraction.MaxRetries,
			RetryBaseDelay:      time.Duration(cfg.Extraction.RetryBaseDelayMS) * time.Millisecond,
			MaxFieldsPerRequest: cfg.Extraction.MaxFieldsPerRequest,
			FuzzyMaxEdits:       cfg.Extraction.FuzzyMaxEdits,
			IncludeChunks:       cfg.Extraction.IncludeChunks,
			IncludeRaw:          cfg.Extraction.IncludeRaw,
			ChunkReasoning:      cfg.Extraction.ChunkReasoning,
			ChunkMetrics:        cfg.Extraction.ChunkMetrics,
		}
		if cfg.Provider.RateLimit > 0 {
			ecfg.RateLimiter = providers.NewRateLimiter(int(cfg.Provider.RateLimit))
		}
		extractor, err := extract.New(ecfg)
		if err != nil {
			return err
		}

		processor, err := batch.NewProcessor(batch.Config{
			Extractor: extractor,
			Logger:    logger,
			Fields:    extractFields,
			Parallel:  cfg.Batch.Parallel,
			Completed: completed,
			Ledger:    writer,
		})
		if err != nil {
			return err
		}

		logger.Info("starting extraction",
			"documents", len(docs),
			"skipped", skipped,
			"fields", fieldSummary(extractFields, s),
			"parallel", cfg.Batch.Parallel,
			"model", cfg.Provider.Model,
		)

		var succeeded, failed int
		var usage extract.Usage
		start := time.Now()

		runErr := processor.Run(ctx, docs, func(res extract.DocumentResult) error {
			if res.Success {
				succeeded++
			} else {
				failed++
				logger.Warn("document extraction failed", "doc_id", res.ID, "errors", len(res.Errors))
			}
			if res.Usage != nil {
				usage.PromptTokens += res.Usage.PromptTokens
				usage.CompletionTokens += res.Usage.CompletionTokens
				usage.TotalTokens += res.Usage.TotalTokens
			}
			logger.Debug("document complete", "doc_id", res.ID, "success", res.Success, "latency_seconds", res.Latency)
			return nil
		})
		if runErr != nil {
			return runErr
		}

		fmt.Printf("Processed %d documents in %s (%d succeeded, %d failed, %d skipped)\n",
			succeeded+failed, time.Since(start).Round(time.Millisecond), succeeded, failed, skipped)
		if usage.TotalTokens > 0 {
			fmt.Printf("Tokens: %d prompt, %d completion, %d total\n",
				usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSchemaPath, "schema", "", "field schema YAML file (required)")
	extractCmd.Flags().StringVar(&extractInputPath, "input", "", "input documents JSONL file (required)")
	extractCmd.Flags().StringVar(&extractOutputPath, "output", "", "output results JSONL file (required)")
	extractCmd.Flags().StringSliceVar(&extractFields, "fields", nil, "restrict extraction to these fields (default: all)")
	extractCmd.Flags().StringVar(&extractModel, "model", "", "model name override")
	extractCmd.Flags().IntVar(&extractParallel, "parallel", 0, "concurrent document extractions")
	extractCmd.Flags().IntVar(&extractMaxRetries, "max-retries", 0, "extra attempts per chunk request")
	extractCmd.Flags().IntVar(&extractChunkSize, "chunk-size", 0, "max fields per request (0 = all in one)")
	extractCmd.Flags().BoolVar(&extractOverwrite, "overwrite", false, "discard previous results instead of resuming")

	for _, flag := range []string{"schema", "input", "output"} {
		if err := extractCmd.MarkFlagRequired(flag); err != nil {
			panic(err)
		}
	}
}

// readDocuments loads a JSONL document stream into memory.
func readDocuments(path string) ([]extract.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	var docs []extract.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc extract.Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("input line %d: %w", line, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("input line %d: missing document id", line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return docs, nil
}

func fieldSummary(fields []string, s *schema.Schema) string {
	if len(fields) == 0 {
		return fmt.Sprintf("all (%d)", s.Len())
	}
	return strings.Join(fields, ",")
}
