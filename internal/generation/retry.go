package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/docqa-go/internal/logging"
)

// defaultInitialInterval is the first backoff delay between attempts.
const defaultInitialInterval = 500 * time.Millisecond

// Retrying wraps a Generator with bounded exponential backoff. Completion
// calls with an identical prompt are safe to repeat. Cancellation of the
// caller's context stops retrying immediately.
type Retrying struct {
	next       Generator
	maxRetries uint64
	initial    time.Duration
}

// NewRetrying returns a Generator that retries next up to maxRetries times
// after the first attempt. maxRetries <= 0 returns next unchanged.
func NewRetrying(next Generator, maxRetries int) Generator {
	if maxRetries <= 0 {
		return next
	}
	return &Retrying{
		next:       next,
		maxRetries: uint64(maxRetries),
		initial:    defaultInitialInterval,
	}
}

// Generate calls the wrapped Generator until it succeeds, the retry budget
// is spent, or ctx is done. The last error is returned unchanged.
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	attempt := 0
	op := func() error {
		attempt++
		s, err := r.next.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("generation attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return out, nil
}
