package loadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
	"github.com/uhyunpark/tradepost/pkg/app/exchange"
)

// Target is the part of the exchange the feeder drives.
type Target interface {
	SubmitOrder(ctx context.Context, req exchange.OrderRequest) (engine.Result, error)
	CancelOrder(ctx context.Context, id string) (orderbook.Order, error)
}

// FeederConfig controls the generated rate: BatchSize commands every Interval.
type FeederConfig struct {
	BatchSize   int
	Interval    time.Duration
	NumTraders  int
	Instruments []string
	BasePrice   int64 // ticks
	Seed        int64 // 0 seeds from the clock
}

// DefaultFeederConfig is about 100 commands per second.
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		BatchSize:  10,
		Interval:   100 * time.Millisecond,
		NumTraders: 50,
		BasePrice:  1000,
	}
}

// HighLoadConfig is about 10k commands per second.
func HighLoadConfig() FeederConfig {
	return FeederConfig{
		BatchSize:  100,
		Interval:   10 * time.Millisecond,
		NumTraders: 500,
		BasePrice:  1000,
	}
}

// ConfigForMode maps a mode name to a preset.
func ConfigForMode(mode string) (FeederConfig, error) {
	switch mode {
	case "", "default":
		return DefaultFeederConfig(), nil
	case "high":
		return HighLoadConfig(), nil
	default:
		return FeederConfig{}, fmt.Errorf("unknown load mode %q", mode)
	}
}

// Stats counts what the feeder sent.
type Stats struct {
	Orders   int
	Cancels  int
	Fills    int
	Rejected int
}

// Feed sends generated commands to t until ctx is cancelled and returns the
// totals.
func Feed(ctx context.Context, t Target, cfg FeederConfig, logger *zap.SugaredLogger) Stats {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := NewGenerator(cfg.NumTraders, cfg.Instruments, cfg.BasePrice, seed)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	start := time.Now()
	lastReport := start
	var st Stats

	logger.Infow("loadgen_started",
		"batch", cfg.BatchSize,
		"interval", cfg.Interval,
		"traders", cfg.NumTraders,
		"instruments", cfg.Instruments)

	for {
		select {
		case <-ctx.Done():
			elapsed := time.Since(start)
			logger.Infow("loadgen_stopped",
				"orders", st.Orders,
				"cancels", st.Cancels,
				"fills", st.Fills,
				"rejected", st.Rejected,
				"elapsed", elapsed.Round(time.Millisecond))
			return st

		case <-ticker.C:
			for i := 0; i < cfg.BatchSize; i++ {
				if !step(ctx, t, gen.Next(), &st) {
					break
				}
			}
			if time.Since(lastReport) >= 10*time.Second {
				lastReport = time.Now()
				elapsed := time.Since(start).Seconds()
				logger.Infow("loadgen_stats",
					"orders", st.Orders,
					"cancels", st.Cancels,
					"fills", st.Fills,
					"rate", float64(st.Orders+st.Cancels)/elapsed)
			}
		}
	}
}

// step applies one op and reports whether the feeder should keep going.
func step(ctx context.Context, t Target, op Op, st *Stats) bool {
	var err error
	if op.Order != nil {
		var res engine.Result
		res, err = t.SubmitOrder(ctx, *op.Order)
		st.Orders++
		st.Fills += len(res.Fills)
	} else {
		_, err = t.CancelOrder(ctx, op.CancelID)
		st.Cancels++
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, engine.ErrEngineStopped):
		return false
	default:
		st.Rejected++
		return true
	}
}
