// Package retry provides bounded retry with backoff delays for transient
// failures, used by peripheral warm-up paths. Queue drains never retry
// within a drain; their retry unit is the next drain.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	Delays      []time.Duration
}

// Do executes fn up to MaxAttempts times, sleeping between attempts
// according to Delays (the last delay repeats when attempts outnumber
// delays). The last error is returned, wrapped, when every attempt fails.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 && len(cfg.Delays) > 0 {
			idx := attempt - 1
			if idx >= len(cfg.Delays) {
				idx = len(cfg.Delays) - 1
			}
			select {
			case <-time.After(cfg.Delays[idx]):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
