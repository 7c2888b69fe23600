package cycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/reconcile"
)

// permanent errors are not retried.
func permanent(err error) bool {
	return errors.Is(err, reconcile.ErrMalformedKey)
}

// retry runs fn up to attempts times, each under its own timeout, doubling
// the pause between tries.
func (r *Runner) retry(ctx context.Context, op string, log *zap.Logger, fn func(ctx context.Context) error) error {
	var lastErr error
	pause := r.opts.Backoff
	for attempt := range r.opts.Attempts {
		opCtx, cancel := context.WithTimeout(ctx, r.opts.OpTimeout)
		lastErr = fn(opCtx)
		cancel()
		if lastErr == nil || permanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn(op+" failed",
			zap.Int("attempt", attempt+1),
			zap.Int("attempts", r.opts.Attempts),
			zap.Error(lastErr),
		)
		if attempt == r.opts.Attempts-1 {
			break
		}
		if err := r.sleep(ctx, pause); err != nil {
			return err
		}
		pause *= 2
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
