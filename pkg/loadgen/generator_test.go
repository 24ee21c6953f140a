package loadgen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
	"github.com/uhyunpark/tradepost/pkg/app/exchange"
)

func TestGeneratedOrdersAreWellFormed(t *testing.T) {
	g := NewGenerator(5, []string{"IRON_SWORD", "GUILD"}, 1000, 42)
	seen := make(map[string]bool)

	for i := 0; i < 2000; i++ {
		o := g.Order()
		require.False(t, seen[o.ID], "duplicate id %s", o.ID)
		seen[o.ID] = true

		assert.Contains(t, []string{"IRON_SWORD", "GUILD"}, o.Instrument)
		assert.True(t, o.Qty >= 1 && o.Qty <= 100)
		switch o.Type {
		case orderbook.Limit:
			require.True(t, o.Price.Set)
			assert.True(t, o.Price.Ticks >= 950 && o.Price.Ticks <= 1050, "price %d", o.Price.Ticks)
		case orderbook.Market:
			assert.False(t, o.Price.Set)
			assert.Equal(t, orderbook.IOC, o.TIF)
		}
	}
}

func TestCancelsTargetRestingCandidates(t *testing.T) {
	g := NewGenerator(1, []string{"GUILD"}, 1000, 7)
	assert.Empty(t, g.CancelID())

	gtc := make(map[string]bool)
	for i := 0; i < 200; i++ {
		if o := g.Order(); o.Type == orderbook.Limit && o.TIF == orderbook.GTC {
			gtc[o.ID] = true
		}
	}
	for id := g.CancelID(); id != ""; id = g.CancelID() {
		require.True(t, gtc[id], "cancel of non-GTC order %s", id)
		delete(gtc, id)
	}
	assert.Empty(t, gtc)
}

type countingTarget struct {
	orders, cancels int
}

func (c *countingTarget) SubmitOrder(_ context.Context, req exchange.OrderRequest) (engine.Result, error) {
	c.orders++
	return engine.Result{Order: orderbook.Order{ID: req.ID}}, nil
}

func (c *countingTarget) CancelOrder(_ context.Context, id string) (orderbook.Order, error) {
	c.cancels++
	return orderbook.Order{}, engine.ErrOrderNotCancellable
}

func TestFeedStopsOnCancel(t *testing.T) {
	target := &countingTarget{}
	cfg := DefaultFeederConfig()
	cfg.Interval = time.Millisecond
	cfg.Instruments = []string{"GUILD"}
	cfg.Seed = 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	st := Feed(ctx, target, cfg, nil)

	assert.Positive(t, st.Orders)
	assert.Equal(t, target.orders, st.Orders)
	assert.Equal(t, target.cancels, st.Cancels)
	assert.Equal(t, st.Cancels, st.Rejected)
}

func TestConfigForMode(t *testing.T) {
	cfg, err := ConfigForMode("high")
	require.NoError(t, err)
	assert.Equal(t, HighLoadConfig(), cfg)
	_, err = ConfigForMode("ludicrous")
	assert.Error(t, err)
}
