package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/quarrydev/quarry/internal/providers"
)

// send drives one chunk request through the retry policy: maxRetries+1
// attempts with linear backoff (attempt n waits n*baseDelay before the next
// try). Every failed attempt's error text is recorded in order. The payload
// is never interpreted here.
func (e *Extractor) send(ctx context.Context, messages []providers.Message) (*providers.ChatResult, []string, bool) {
	var attemptErrs []string
	var result *providers.ChatResult

	err := retry.Do(
		func() error {
			if e.cfg.RateLimiter != nil {
				if err := e.cfg.RateLimiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}

			res, err := e.cfg.Client.Chat(ctx, &providers.ChatRequest{Messages: messages})
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.New(res.ErrorMessage)
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.cfg.MaxRetries)+1),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			// n counts attempts made so far: 1 after the first failure.
			return time.Duration(n) * e.cfg.RetryBaseDelay
		}),
		retry.OnRetry(func(n uint, err error) {
			attemptErrs = append(attemptErrs, fmt.Sprintf("attempt %d: %v", n+1, err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, attemptErrs, false
	}
	return result, attemptErrs, true
}
