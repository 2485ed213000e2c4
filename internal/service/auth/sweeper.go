package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically marks expired-but-still-valid sessions invalid so the
// durable store converges with reality even when nobody refreshes them.
type Sweeper struct {
	repo     Repository
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(repo Repository, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{repo: repo, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	n, err := w.repo.RevokeExpiredSessions(ctx)
	if err != nil {
		w.logger.Error("session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("revoked expired sessions", zap.Int64("count", n))
	}
}
