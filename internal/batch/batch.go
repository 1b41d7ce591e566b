// Package batch runs many documents through an extractor with bounded
// concurrency. Results surface in completion order, are appended to a result
// ledger before being handed to the caller, and documents already present in
// the resume set are skipped without spending any requests.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quarrydev/quarry/internal/extract"
	"github.com/quarrydev/quarry/internal/ledger"
)

// DefaultParallel is the concurrency used when Config.Parallel is unset.
const DefaultParallel = 4

// Config configures a Processor.
type Config struct {
	Extractor *extract.Extractor
	Logger    *slog.Logger

	// Fields restricts extraction to a subset of schema fields; empty
	// means all fields.
	Fields []string

	// Parallel is the number of documents extracted concurrently.
	Parallel int

	// Completed holds document ids to skip, typically rebuilt from a prior
	// run's ledger.
	Completed map[string]struct{}

	// Ledger, when set, receives every result before it is surfaced, so an
	// interrupted run never re-extracts a document it already delivered.
	Ledger *ledger.Writer
}

// Processor dispatches documents to an extractor.
type Processor struct {
	cfg    Config
	logger *slog.Logger
}

// NewProcessor creates a Processor. Extractor is required.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("processor requires an extractor")
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = DefaultParallel
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		cfg:    cfg,
		logger: logger.With("component", "batch"),
	}, nil
}

// Process consumes documents and emits one result per processed document, in
// completion order. At most Parallel extractions run at once, and at most
// 2*Parallel documents are admitted ahead of the consumer, so an arbitrarily
// large input stream is never materialized. Documents in the resume set are
// dropped, as are repeats of an id already admitted in this run. The returned
// channel closes once every admitted document has been delivered or the
// context is cancelled.
func (p *Processor) Process(ctx context.Context, docs <-chan extract.Document) <-chan extract.DocumentResult {
	results := make(chan extract.DocumentResult)

	go func() {
		defer close(results)

		sem := make(chan struct{}, p.cfg.Parallel)
		slots := make(chan struct{}, 2*p.cfg.Parallel)
		inner := make(chan extract.DocumentResult)

		var wg sync.WaitGroup
		go func() {
			defer func() {
				wg.Wait()
				close(inner)
			}()
			seen := make(map[string]struct{})
			for {
				var doc extract.Document
				var ok bool
				select {
				case doc, ok = <-docs:
					if !ok {
						return
					}
				case <-ctx.Done():
					return
				}

				if _, done := p.cfg.Completed[doc.ID]; done {
					p.logger.Debug("skipping completed document", "doc_id", doc.ID)
					continue
				}
				if _, dup := seen[doc.ID]; dup {
					p.logger.Warn("skipping duplicate document id", "doc_id", doc.ID)
					continue
				}
				seen[doc.ID] = struct{}{}

				select {
				case slots <- struct{}{}:
				case <-ctx.Done():
					return
				}

				wg.Add(1)
				go func(doc extract.Document) {
					defer wg.Done()
					select {
					case sem <- struct{}{}:
					case <-ctx.Done():
						<-slots
						return
					}
					res := p.cfg.Extractor.Extract(ctx, doc, p.cfg.Fields)
					<-sem
					select {
					case inner <- res:
					case <-ctx.Done():
						<-slots
					}
				}(doc)
			}
		}()

		for res := range inner {
			if p.cfg.Ledger != nil {
				if err := p.cfg.Ledger.Append(res); err != nil {
					p.logger.Error("failed to record result", "doc_id", res.ID, "error", err)
				}
			}
			select {
			case results <- res:
				<-slots
			case <-ctx.Done():
				return
			}
		}
	}()

	return results
}
