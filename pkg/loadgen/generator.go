// Package loadgen produces synthetic order flow for load testing a running
// exchange.
package loadgen

import (
	"fmt"
	"math/rand"

	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
	"github.com/uhyunpark/tradepost/pkg/app/exchange"
)

// Generator creates random orders and cancels. Not safe for concurrent use.
type Generator struct {
	traders     []string
	instruments []string
	basePrice   int64 // ticks
	seq         int
	recent      []string // ids that may still be resting
	rng         *rand.Rand
}

func NewGenerator(numTraders int, instruments []string, basePrice int64, seed int64) *Generator {
	traders := make([]string, numTraders)
	for i := range traders {
		traders[i] = fmt.Sprintf("trader_%d", i+1)
	}
	if basePrice <= 0 {
		basePrice = 1000
	}
	return &Generator{
		traders:     traders,
		instruments: instruments,
		basePrice:   basePrice,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Order returns a random order: 70% GTC limit, 15% IOC limit, 5% FOK limit,
// 10% IOC market.
func (g *Generator) Order() exchange.OrderRequest {
	g.seq++
	owner := g.traders[g.rng.Intn(len(g.traders))]
	req := exchange.OrderRequest{
		ID:         fmt.Sprintf("%s_o%d", owner, g.seq),
		Instrument: g.instruments[g.rng.Intn(len(g.instruments))],
		Owner:      owner,
		Side:       orderbook.Buy,
		Type:       orderbook.Limit,
		TIF:        orderbook.GTC,
		Qty:        int64(g.rng.Intn(100) + 1),
	}
	if g.rng.Intn(2) == 1 {
		req.Side = orderbook.Sell
	}

	// within 5% of the base price
	spread := g.basePrice / 20
	if spread < 1 {
		spread = 1
	}
	price := g.basePrice + g.rng.Int63n(2*spread+1) - spread
	if price < 1 {
		price = 1
	}

	switch r := g.rng.Intn(100); {
	case r < 70:
		req.Price = orderbook.LimitAt(price)
		g.remember(req.ID)
	case r < 85:
		req.TIF = orderbook.IOC
		req.Price = orderbook.LimitAt(price)
	case r < 90:
		req.TIF = orderbook.FOK
		req.Price = orderbook.LimitAt(price)
	default:
		req.Type = orderbook.Market
		req.TIF = orderbook.IOC
	}
	return req
}

// CancelID returns the id of a recently generated GTC order, or "" if there
// is none.
func (g *Generator) CancelID() string {
	if len(g.recent) == 0 {
		return ""
	}
	i := g.rng.Intn(len(g.recent))
	id := g.recent[i]
	g.recent[i] = g.recent[len(g.recent)-1]
	g.recent = g.recent[:len(g.recent)-1]
	return id
}

func (g *Generator) remember(id string) {
	const keep = 1000
	if len(g.recent) >= keep {
		g.recent = g.recent[1:]
	}
	g.recent = append(g.recent, id)
}

// Op is one generated command: either an order or a cancel.
type Op struct {
	Order    *exchange.OrderRequest
	CancelID string
}

// Next returns an order 90% of the time and a cancel otherwise.
func (g *Generator) Next() Op {
	if g.rng.Intn(100) < 90 {
		o := g.Order()
		return Op{Order: &o}
	}
	if id := g.CancelID(); id != "" {
		return Op{CancelID: id}
	}
	o := g.Order()
	return Op{Order: &o}
}
