package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/velomarket/deliveryhub/internal/observability"
)

// SweepExpired periodically deletes refresh tokens past their expiry.
// Expired tokens are already rejected lazily on use; the sweeper just keeps
// the table from growing without bound. Blocks until ctx is cancelled.
func SweepExpired(ctx context.Context, tokens TokenStore, metrics *observability.Prom, log *slog.Logger, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, tokens, metrics, log)
		}
	}
}

func sweepOnce(ctx context.Context, tokens TokenStore, metrics *observability.Prom, log *slog.Logger) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := tokens.DeleteExpired(cctx, time.Now().UTC())

	if err != nil {
		log.ErrorContext(cctx, "token sweep failed", "err", err)
		return
	}

	if metrics != nil {
		metrics.TokensSwept.Add(float64(removed))

		if n, err := tokens.Count(cctx); err == nil {
			metrics.ActiveSessions.Set(float64(n))
		}
	}

	if removed > 0 {
		log.InfoContext(cctx, "swept expired refresh tokens", "removed", removed)
	}
}
