package journal

import (
	"context"
	"time"
)

// Logger is the logging surface used by the retention loop.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RunRetention prunes entries older than retention every interval until
// ctx is done. It prunes once at start. A zero retention disables pruning
// and returns immediately.
func RunRetention(ctx context.Context, repo Repository, retention, interval time.Duration, logger Logger) error {
	if retention <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		if logger == nil {
			return
		}
		switch {
		case err != nil:
			logger.Warn("journal prune failed", "error", err)
		case n > 0:
			logger.Info("journal pruned", "deleted", n, "retention", retention.String())
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prune()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}
