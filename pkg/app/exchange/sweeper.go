package exchange

import (
	"context"
	"errors"
)

// runSweeper expires good-till orders on every tick of the exchange clock.
func (x *Exchange) runSweeper(ctx context.Context) {
	x.log.Infow("expiry_sweeper_started", "interval", x.sweep)
	for {
		select {
		case <-ctx.Done():
			return
		case <-x.clock.After(x.sweep):
		}
		x.SweepExpired(ctx)
	}
}

// SweepExpired expires every order whose good-till time has passed and
// returns how many were expired.
func (x *Exchange) SweepExpired(ctx context.Context) int {
	now := x.clock.Now()
	expired := 0
	for id, b := range x.books {
		if _, err := x.catalog.Tradeable(id); err != nil {
			continue
		}
		res, err := b.queue.ExpireDue(ctx, now)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				x.log.Warnw("expiry_sweep_failed", "instrument", id, "err", err)
			}
			continue
		}
		if n := len(res.Updated); n > 0 {
			expired += n
			x.log.Infow("orders_expired", "instrument", id, "count", n)
		}
	}
	return expired
}
