package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quarrydev/quarry/internal/match"
	"github.com/quarrydev/quarry/internal/prompt"
	"github.com/quarrydev/quarry/internal/providers"
	"github.com/quarrydev/quarry/internal/schema"
)

// Config configures an Extractor.
type Config struct {
	Schema *schema.Schema
	Client providers.LLMClient
	Logger *slog.Logger

	// Retry policy for each chunk request
	MaxRetries     int           // attempts = MaxRetries+1 (default 3)
	RetryBaseDelay time.Duration // linear backoff unit (default 1s)

	// MaxFieldsPerRequest caps fields per chunk; <= 0 means one chunk.
	MaxFieldsPerRequest int

	// FuzzyMaxEdits overrides the matcher's edit budget when >= 0.
	FuzzyMaxEdits int

	// Result detail retention
	IncludeChunks  bool // per-chunk detail on the document result
	IncludeRaw     bool // raw response text (per chunk and aggregated)
	ChunkReasoning bool // model reasoning text per chunk
	ChunkMetrics   bool // token usage per chunk and aggregated

	// RateLimiter, when set, is waited on before every request attempt.
	RateLimiter *providers.RateLimiter
}

// DefaultConfig returns a Config with full result detail retained,
// mirroring what a diagnosing caller wants by default.
func DefaultConfig(s *schema.Schema, client providers.LLMClient) Config {
	return Config{
		Schema:         s,
		Client:         client,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		FuzzyMaxEdits:  -1,
		IncludeChunks:  true,
		IncludeRaw:     true,
		ChunkReasoning: true,
		ChunkMetrics:   true,
	}
}

// Extractor runs the full extraction pipeline for single documents.
type Extractor struct {
	cfg     Config
	prompts *prompt.Builder
	logger  *slog.Logger
}

// New creates an Extractor. Schema and Client are required.
func New(cfg Config) (*Extractor, error) {
	if cfg.Schema == nil {
		return nil, fmt.Errorf("extractor requires a schema")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("extractor requires an LLM client")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		cfg:     cfg,
		prompts: prompt.NewBuilder(cfg.Schema),
		logger:  logger.With("component", "extractor"),
	}, nil
}

// Extract runs one document through the pipeline and always returns a
// DocumentResult, even on total failure: errors are data, never panics or
// returned Go errors. fields nil or empty means every schema field.
func (e *Extractor) Extract(ctx context.Context, doc Document, fields []string) DocumentResult {
	targets := fields
	if len(targets) == 0 {
		targets = e.cfg.Schema.FieldNames()
	}
	chunks := PlanChunks(targets, e.cfg.MaxFieldsPerRequest)

	out := DocumentResult{
		ID:         doc.ID,
		Extraction: make(map[string]FieldResult),
		Errors:     []string{},
		Success:    true,
	}
	var totalUsage Usage
	var rawParts []string

	for i, chunk := range chunks {
		// Cancellation is observed at chunk boundaries; chunks within a
		// document run strictly sequentially.
		if err := ctx.Err(); err != nil {
			out.Success = false
			msg := fmt.Sprintf("cancelled before chunk %v: %v", chunk, err)
			out.Errors = append(out.Errors, msg)
			if e.cfg.IncludeChunks {
				out.Chunks = append(out.Chunks, ChunkResult{Index: i, Fields: chunk, Error: msg})
			}
			continue
		}

		messages := e.prompts.Messages(doc.Text, chunk)
		e.logger.Debug("sending chunk request",
			"doc_id", doc.ID,
			"chunk", i+1,
			"chunks", len(chunks),
			"fields", chunk,
		)
		if e.logger.Enabled(ctx, slog.LevelDebug) {
			for _, m := range messages {
				e.logger.Debug("chunk request message",
					"doc_id", doc.ID,
					"chunk", i+1,
					"role", m.Role,
					"content", m.Content,
				)
			}
		}

		result, attemptErrs, ok := e.send(ctx, messages)
		out.Errors = append(out.Errors, attemptErrs...)

		cr := ChunkResult{Index: i, Fields: chunk, Success: ok}
		if !ok {
			out.Success = false
			msg := fmt.Sprintf("max retries exceeded for chunk %v", chunk)
			out.Errors = append(out.Errors, msg)
			cr.Error = msg
		} else {
			latency := result.Latency.Seconds()
			out.Latency += latency
			cr.Latency = latency

			totalUsage.add(result.PromptTokens, result.CompletionTokens, result.TotalTokens)
			if e.cfg.ChunkMetrics {
				cr.Usage = &Usage{
					PromptTokens:     result.PromptTokens,
					CompletionTokens: result.CompletionTokens,
					TotalTokens:      result.TotalTokens,
				}
			}

			rawParts = append(rawParts, result.Content)
			if e.cfg.IncludeRaw {
				cr.RawResponse = result.Content
			}
			if e.cfg.ChunkReasoning && result.ReasoningContent != "" {
				cr.Reasoning = result.ReasoningContent
			}

			parsed, perr := parseExtraction(result.Content)
			if perr != nil {
				out.Success = false
				cr.Success = false
				msg := fmt.Sprintf("failed to parse JSON response for chunk %v: %v", chunk, perr)
				out.Errors = append(out.Errors, msg)
				cr.Error = msg
			} else {
				if e.cfg.IncludeChunks {
					cr.Parsed = parsed
				}
				e.mergeFields(doc.Text, chunk, parsed, out.Extraction)
			}
		}

		if e.cfg.IncludeChunks {
			out.Chunks = append(out.Chunks, cr)
		}
	}

	if e.cfg.ChunkMetrics {
		out.Usage = &totalUsage
	}
	if e.cfg.IncludeRaw && len(rawParts) > 0 {
		out.RawResponse = strings.Join(rawParts, "\n---\n")
	}
	if !out.Success {
		out.Error = "one or more chunks failed"
	}

	return out
}

// mergeFields folds one parsed chunk payload into the document extraction,
// honoring each field's grounding/reasoning flags.
func (e *Extractor) mergeFields(docText string, chunk []string, parsed map[string]any, into map[string]FieldResult) {
	for _, name := range chunk {
		def, known := e.cfg.Schema.Get(name)
		if !known {
			continue
		}
		raw, present := parsed[name]
		if !present {
			continue
		}

		payload := resolvePayload(raw)
		fr := FieldResult{Answer: payload.answer}
		if def.Reasoning && payload.reasoning != "" {
			fr.Reasoning = payload.reasoning
		}
		if def.Grounding && len(payload.grounding) > 0 {
			fr.Grounding = e.ground(docText, payload.grounding)
		}
		into[name] = fr
	}
}

// ground locates each claimed snippet in the document text.
func (e *Extractor) ground(docText string, snippets []string) []GroundingSpan {
	var opts *match.Options
	if e.cfg.FuzzyMaxEdits >= 0 {
		opts = &match.Options{MaxEdits: e.cfg.FuzzyMaxEdits}
	}

	spans := make([]GroundingSpan, 0, len(snippets))
	for _, snippet := range snippets {
		matches := match.Find(docText, snippet, opts)
		anchors := make([]Anchor, 0, len(matches))
		for _, m := range matches {
			anchors = append(anchors, Anchor{Start: m.Start, End: m.End})
		}
		spans = append(spans, GroundingSpan{Text: snippet, Anchors: anchors})
	}
	return spans
}
