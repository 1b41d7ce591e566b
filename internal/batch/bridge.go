package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrydev/quarry/internal/extract"
)

// shutdownGrace bounds how long Run waits for in-flight extractions to wind
// down after an early exit before abandoning them.
const shutdownGrace = 5 * time.Second

// Run processes a fixed slice of documents and invokes fn for each result as
// it completes. A non-nil error from fn, or a panic inside it, stops the run:
// no further results are delivered, in-flight extractions are cancelled, and
// the first failure is returned. Run blocks until every delivered result has
// been handled or the context is cancelled.
func (p *Processor) Run(ctx context.Context, docs []extract.Document, fn func(extract.DocumentResult) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan extract.Document)
	go func() {
		defer close(in)
		for _, doc := range docs {
			select {
			case in <- doc:
			case <-runCtx.Done():
				return
			}
		}
	}()

	results := p.Process(runCtx, in)

	for {
		select {
		case res, ok := <-results:
			if !ok {
				return ctx.Err()
			}
			if err := invoke(fn, res); err != nil {
				cancel()
				p.drain(results)
				return err
			}
		case <-ctx.Done():
			cancel()
			p.drain(results)
			return ctx.Err()
		}
	}
}

// invoke calls fn, converting a panic into an error so one bad callback
// cannot take down the whole batch.
func invoke(fn func(extract.DocumentResult) error, res extract.DocumentResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("result callback panicked on document %s: %v", res.ID, r)
		}
	}()
	return fn(res)
}

// drain discards remaining results until the processor shuts down, giving up
// after the grace period.
func (p *Processor) drain(results <-chan extract.DocumentResult) {
	timer := time.NewTimer(shutdownGrace)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-results:
			if !ok {
				return
			}
		case <-timer.C:
			p.logger.Warn("shutdown grace period expired with extractions still in flight")
			return
		}
	}
}
