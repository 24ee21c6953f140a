package orderbook

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func now() time.Time { return t0 }

func limit(id string, side Side, price, qty int64) *Order {
	return &Order{ID: id, Instrument: "GUILD", Side: side, Type: Limit, TIF: GTC, Qty: qty, LimitPrice: LimitAt(price)}
}

func ids(orders []*Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestInsertBestPrices(t *testing.T) {
	b := NewOrderBook("GUILD")
	assert.Nil(t, b.BestBid())
	assert.Nil(t, b.BestAsk())

	for _, o := range []*Order{
		limit("b1", Buy, 100, 5),
		limit("b2", Buy, 102, 5),
		limit("b3", Buy, 99, 5),
		limit("a1", Sell, 110, 5),
		limit("a2", Sell, 105, 5),
		limit("a3", Sell, 120, 5),
	} {
		require.NoError(t, b.Insert(o))
	}

	require.NotNil(t, b.BestBid())
	require.NotNil(t, b.BestAsk())
	assert.Equal(t, int64(102), b.BestBid().Price)
	assert.Equal(t, int64(105), b.BestAsk().Price)
	assert.False(t, b.Crossed())
	assert.Equal(t, 6, b.Len())
	assert.Equal(t, 3, b.Levels(Buy))
	require.NoError(t, b.Check())
}

func TestPriceLevelFIFO(t *testing.T) {
	b := NewOrderBook("GUILD")
	for i := 1; i <= 4; i++ {
		require.NoError(t, b.Insert(limit(fmt.Sprintf("s%d", i), Sell, 100, int64(i))))
	}

	lvl := b.BestAsk()
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids(lvl.Orders()))
	assert.Equal(t, int64(10), lvl.TotalQty)
	assert.Equal(t, 4, lvl.OrderCount)

	// removing from the middle keeps the others in arrival order
	_, err := b.Remove("s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3", "s4"}, ids(lvl.Orders()))
	assert.Equal(t, int64(8), lvl.TotalQty)
	require.NoError(t, b.Check())
}

func TestRemoveDropsEmptyLevelAndRefreshesBest(t *testing.T) {
	b := NewOrderBook("GUILD")
	require.NoError(t, b.Insert(limit("b1", Buy, 101, 5)))
	require.NoError(t, b.Insert(limit("b2", Buy, 100, 5)))

	_, err := b.Remove("b1")
	require.NoError(t, err)
	require.NotNil(t, b.BestBid())
	assert.Equal(t, int64(100), b.BestBid().Price)
	assert.Equal(t, 1, b.Levels(Buy))

	_, err = b.Remove("b1")
	assert.ErrorIs(t, err, ErrNotResting)

	_, err = b.Remove("b2")
	require.NoError(t, err)
	assert.Nil(t, b.BestBid())
	require.NoError(t, b.Check())
}

func TestInsertRejects(t *testing.T) {
	b := NewOrderBook("GUILD")
	o := limit("b1", Buy, 100, 5)
	require.NoError(t, b.Insert(o))

	assert.ErrorIs(t, b.Insert(o), ErrDuplicateOrder)
	assert.Error(t, b.Insert(&Order{ID: "m1", Side: Buy, Type: Market, Qty: 5}), "market orders never rest")

	done := limit("b2", Buy, 100, 5)
	done.Filled = 5
	assert.Error(t, b.Insert(done), "nothing left to rest")
}

func TestConsumeKeepsLevelTotals(t *testing.T) {
	b := NewOrderBook("GUILD")
	m1 := limit("s1", Sell, 100, 5)
	m2 := limit("s2", Sell, 100, 3)
	require.NoError(t, b.Insert(m1))
	require.NoError(t, b.Insert(m2))

	require.NoError(t, b.Consume(m1, 2, now()))
	assert.Equal(t, PartiallyFilled, m1.Status)
	assert.Equal(t, int64(6), b.BestAsk().TotalQty)
	assert.True(t, m1.Resting())

	require.NoError(t, b.Consume(m1, 3, now()))
	assert.Equal(t, Filled, m1.Status)
	assert.False(t, m1.Resting())
	assert.Equal(t, "s2", b.BestAsk().Head().ID)
	assert.Equal(t, int64(3), b.BestAsk().TotalQty)
	require.NoError(t, b.Check())

	assert.ErrorIs(t, b.Consume(m1, 1, now()), ErrNotResting)
}

func TestDepth(t *testing.T) {
	b := NewOrderBook("GUILD")
	require.NoError(t, b.Insert(limit("b1", Buy, 100, 5)))
	require.NoError(t, b.Insert(limit("b2", Buy, 100, 2)))
	require.NoError(t, b.Insert(limit("b3", Buy, 98, 1)))
	require.NoError(t, b.Insert(limit("a1", Sell, 103, 4)))
	require.NoError(t, b.Insert(limit("a2", Sell, 101, 6)))

	d := b.Depth(0)
	assert.Equal(t, []LevelView{{Price: 100, Qty: 7, Orders: 2}, {Price: 98, Qty: 1, Orders: 1}}, d.Bids)
	assert.Equal(t, []LevelView{{Price: 101, Qty: 6, Orders: 1}, {Price: 103, Qty: 4, Orders: 1}}, d.Asks)

	d = b.Depth(1)
	assert.Len(t, d.Bids, 1)
	assert.Len(t, d.Asks, 1)
	assert.Equal(t, int64(101), d.Asks[0].Price)
}

func TestCheckDetectsCorruption(t *testing.T) {
	b := NewOrderBook("GUILD")
	o := limit("b1", Buy, 100, 5)
	require.NoError(t, b.Insert(o))

	b.BestBid().TotalQty = 99
	assert.Error(t, b.Check())
	b.BestBid().TotalQty = 5
	require.NoError(t, b.Check())

	// a resting ask below the best bid
	ask := limit("a1", Sell, 90, 1)
	b.asks.levelFor(90).enqueue(ask)
	b.index[ask.ID] = ask
	assert.Error(t, b.Check())
}

func TestOrderJSONUsesNames(t *testing.T) {
	o := limit("b1", Buy, 100, 5)
	o.Status = PartiallyFilled
	o.Filled = 2

	raw, err := json.Marshal(o.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"side":"buy"`)
	assert.Contains(t, string(raw), `"status":"partially_filled"`)
	assert.Contains(t, string(raw), `"tif":"GTC"`)
	assert.NotContains(t, string(raw), "goodTill")

	var back Order
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, o.Snapshot(), back)
}
