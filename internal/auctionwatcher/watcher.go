package auctionwatcher

import (
	"context"
	"time"

	"diamondauction/internal/services/auction"

	"go.uber.org/zap"
)

// Ticker is the part of the auction service the watcher drives.
type Ticker interface {
	Tick(ctx context.Context) auction.TickResult
}

// Run starts due drafts and closes expired auctions every interval until
// ctx is done. Run must be started once at service boot.
func Run(ctx context.Context, svc Ticker, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()

	// catch up on anything that came due while the process was down
	tick(ctx, svc)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			tick(ctx, svc)
		}
	}
}

func tick(ctx context.Context, svc Ticker) {
	res := svc.Tick(ctx)
	if res.Started > 0 || res.Closed > 0 {
		zap.L().Info("auctionwatcher.tick",
			zap.Int("started", res.Started),
			zap.Int("closed", res.Closed))
	}
}
