package orderbook

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/btree"
)

var (
	ErrDuplicateOrder = errors.New("order already resting")
	ErrNotResting     = errors.New("order not resting")
)

// LevelView is an aggregated, read-only view of one price level.
type LevelView struct {
	Price  int64 `json:"price"`
	Qty    int64 `json:"qty"`
	Orders int   `json:"orders"`
}

// Depth is the aggregated top of both sides, best price first.
type Depth struct {
	Instrument string      `json:"instrument"`
	Bids       []LevelView `json:"bids"`
	Asks       []LevelView `json:"asks"`
}

// bookSide keeps price levels ordered in a btree and caches the best one.
// The cache is refreshed lazily after the best level disappears, which keeps
// Best() O(1) amortized.
type bookSide struct {
	side   Side
	levels *btree.Map[int64, *PriceLevel]
	best   *PriceLevel
	stale  bool
}

func newBookSide(side Side) *bookSide {
	return &bookSide{side: side, levels: btree.NewMap[int64, *PriceLevel](32)}
}

// better reports whether price a has priority over price b on this side.
func (s *bookSide) better(a, b int64) bool {
	if s.side == Buy {
		return a > b
	}
	return a < b
}

func (s *bookSide) bestLevel() *PriceLevel {
	if s.stale {
		s.best = nil
		var lvl *PriceLevel
		var ok bool
		if s.side == Buy {
			_, lvl, ok = s.levels.Max()
		} else {
			_, lvl, ok = s.levels.Min()
		}
		if ok {
			s.best = lvl
		}
		s.stale = false
	}
	return s.best
}

func (s *bookSide) levelFor(price int64) *PriceLevel {
	if lvl, ok := s.levels.Get(price); ok {
		return lvl
	}
	lvl := newPriceLevel(s.side, price)
	s.levels.Set(price, lvl)
	if !s.stale && (s.best == nil || s.better(price, s.best.Price)) {
		s.best = lvl
	}
	return lvl
}

func (s *bookSide) dropLevel(lvl *PriceLevel) {
	s.levels.Delete(lvl.Price)
	if s.best == lvl {
		s.stale = true
	}
}

// walk visits levels best price first until fn returns false.
func (s *bookSide) walk(fn func(*PriceLevel) bool) {
	iter := func(_ int64, lvl *PriceLevel) bool { return fn(lvl) }
	if s.side == Buy {
		s.levels.Reverse(iter)
	} else {
		s.levels.Scan(iter)
	}
}

// OrderBook holds both sides of one instrument. It is single-writer and not
// safe for concurrent use.
type OrderBook struct {
	instrument string
	bids       *bookSide
	asks       *bookSide
	index      map[string]*Order // resting orders only
}

func NewOrderBook(instrument string) *OrderBook {
	return &OrderBook{
		instrument: instrument,
		bids:       newBookSide(Buy),
		asks:       newBookSide(Sell),
		index:      make(map[string]*Order),
	}
}

func (b *OrderBook) Instrument() string { return b.instrument }

func (b *OrderBook) sideOf(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Insert rests o at the back of its price level.
func (b *OrderBook) Insert(o *Order) error {
	if !o.LimitPrice.Set {
		return fmt.Errorf("order %s: resting order needs a limit price", o.ID)
	}
	if o.Remaining() <= 0 {
		return fmt.Errorf("order %s: nothing left to rest", o.ID)
	}
	if _, ok := b.index[o.ID]; ok || o.level != nil {
		return fmt.Errorf("order %s: %w", o.ID, ErrDuplicateOrder)
	}
	b.sideOf(o.Side).levelFor(o.LimitPrice.Ticks).enqueue(o)
	b.index[o.ID] = o
	return nil
}

// Remove takes a resting order out of the book in O(1).
func (b *OrderBook) Remove(id string) (*Order, error) {
	o, ok := b.index[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotResting)
	}
	b.detach(o)
	return o, nil
}

func (b *OrderBook) detach(o *Order) {
	lvl := o.level
	lvl.unlink(o)
	delete(b.index, o.ID)
	if lvl.Empty() {
		b.sideOf(lvl.Side).dropLevel(lvl)
	}
}

// Consume fills qty of a resting maker, keeping the level total in step,
// and removes the maker once it is fully filled.
func (b *OrderBook) Consume(maker *Order, qty int64, at time.Time) error {
	lvl := maker.level
	if lvl == nil {
		return fmt.Errorf("order %s: %w", maker.ID, ErrNotResting)
	}
	if err := maker.Fill(qty, at); err != nil {
		return err
	}
	lvl.TotalQty -= qty
	if maker.Remaining() == 0 {
		b.detach(maker)
	}
	return nil
}

func (b *OrderBook) Get(id string) (*Order, bool) {
	o, ok := b.index[id]
	return o, ok
}

func (b *OrderBook) BestBid() *PriceLevel { return b.bids.bestLevel() }
func (b *OrderBook) BestAsk() *PriceLevel { return b.asks.bestLevel() }

// Best returns the best level on side s, or nil if that side is empty.
func (b *OrderBook) Best(s Side) *PriceLevel {
	return b.sideOf(s).bestLevel()
}

// Walk visits the levels of side s in priority order until fn returns false.
func (b *OrderBook) Walk(s Side, fn func(*PriceLevel) bool) {
	b.sideOf(s).walk(fn)
}

// Len is the number of resting orders.
func (b *OrderBook) Len() int { return len(b.index) }

// Levels returns the number of price levels on side s.
func (b *OrderBook) Levels(s Side) int { return b.sideOf(s).levels.Len() }

// Crossed reports whether best bid >= best ask.
func (b *OrderBook) Crossed() bool {
	bid, ask := b.BestBid(), b.BestAsk()
	return bid != nil && ask != nil && bid.Price >= ask.Price
}

// Depth aggregates up to n levels per side; n <= 0 means all.
func (b *OrderBook) Depth(n int) Depth {
	collect := func(s Side) []LevelView {
		out := make([]LevelView, 0)
		b.Walk(s, func(lvl *PriceLevel) bool {
			out = append(out, LevelView{Price: lvl.Price, Qty: lvl.TotalQty, Orders: lvl.OrderCount})
			return n <= 0 || len(out) < n
		})
		return out
	}
	return Depth{Instrument: b.instrument, Bids: collect(Buy), Asks: collect(Sell)}
}

// Check verifies the structural invariants of the book: level totals match
// their members, the index matches the levels, the cached best is the true
// best, and the book is not crossed.
func (b *OrderBook) Check() error {
	seen := 0
	for _, side := range []*bookSide{b.bids, b.asks} {
		var err error
		side.walk(func(lvl *PriceLevel) bool {
			qty, n := lvl.recount()
			switch {
			case n == 0:
				err = fmt.Errorf("%s level %d is empty", side.side, lvl.Price)
			case qty != lvl.TotalQty || n != lvl.OrderCount:
				err = fmt.Errorf("%s level %d totals %d/%d, members sum to %d/%d",
					side.side, lvl.Price, lvl.TotalQty, lvl.OrderCount, qty, n)
			}
			for o := lvl.head; o != nil && err == nil; o = o.next {
				if b.index[o.ID] != o {
					err = fmt.Errorf("order %s at %s level %d missing from index", o.ID, side.side, lvl.Price)
				}
				if o.Side != side.side || o.LimitPrice.Ticks != lvl.Price {
					err = fmt.Errorf("order %s misplaced at %s level %d", o.ID, side.side, lvl.Price)
				}
			}
			seen += n
			return err == nil
		})
		if err != nil {
			return err
		}
		if _, lvl, ok := side.levels.Min(); ok && side.side == Sell && side.bestLevel() != lvl {
			return fmt.Errorf("cached best ask is stale")
		}
		if _, lvl, ok := side.levels.Max(); ok && side.side == Buy && side.bestLevel() != lvl {
			return fmt.Errorf("cached best bid is stale")
		}
	}
	if seen != len(b.index) {
		return fmt.Errorf("index holds %d orders, levels hold %d", len(b.index), seen)
	}
	if b.Crossed() {
		return fmt.Errorf("book crossed: best bid %d >= best ask %d", b.BestBid().Price, b.BestAsk().Price)
	}
	return nil
}
