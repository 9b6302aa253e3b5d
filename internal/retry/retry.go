// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy controls the number of attempts and the first backoff delay, which
// doubles after every failure.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Default matches the upload retry used across the services.
var Default = Policy{Attempts: 4, Backoff: time.Second}

// Permanent marks an error that must not be retried.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Do calls fn until it succeeds, returns a *Permanent error, the attempts are
// used up, or ctx is done.
func Do(ctx context.Context, logCtx *slog.Logger, op string, p Policy, fn func(ctx context.Context) error) error {
	if logCtx == nil {
		logCtx = slog.Default()
	}
	attempts := max(p.Attempts, 1)
	backoff := p.Backoff
	var lastErr error

	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}

		lastErr = err
		if i == attempts-1 {
			break
		}
		logCtx.Warn(
			"Operation failed, will retry.",
			"op", op,
			"attempt", i+1,
			"maxRetries", attempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			logCtx.Error("Context cancelled during backoff. Aborting retries.", "op", op, "error", ctx.Err())
			return ctx.Err()
		}
	}
	logCtx.Error("Operation failed after all retries.", "op", op, "error", lastErr)
	return fmt.Errorf("%s failed after all retries: %w", op, lastErr)
}
