package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradepost/pkg/app/core/market"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
	"github.com/uhyunpark/tradepost/pkg/app/core/registry"
	"github.com/uhyunpark/tradepost/pkg/util"
)

// Fill is one execution between a taker and a resting maker. Immutable once
// created. Seq increases by one per fill within an instrument.
type Fill struct {
	ID           string         `json:"id"`
	Seq          uint64         `json:"seq"`
	Instrument   string         `json:"instrument"`
	TakerOrderID string         `json:"takerOrderId"`
	MakerOrderID string         `json:"makerOrderId"`
	TakerSide    orderbook.Side `json:"takerSide"`
	Price        int64          `json:"price"` // maker's price, ticks
	Qty          int64          `json:"qty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Result is the outcome of one engine command.
type Result struct {
	Order   orderbook.Order   // the command's target after the pass
	Fills   []Fill            // in execution order
	Updated []orderbook.Order // every order the pass changed, target included
}

// Batch is everything one pass publishes downstream, in pass order.
type Batch struct {
	Instrument string            `json:"instrument"`
	Fills      []Fill            `json:"fills"`
	Orders     []orderbook.Order `json:"orders"`
}

// Batch packages the result for the dispatcher.
func (r Result) Batch(instrument string) Batch {
	return Batch{Instrument: instrument, Fills: r.Fills, Orders: r.Updated}
}

// Empty reports whether the pass changed nothing.
func (r Result) Empty() bool { return len(r.Fills) == 0 && len(r.Updated) == 0 }

type Config struct {
	Instrument market.Instrument
	Registry   *registry.Registry
	Clock      util.Clock
	Logger     *zap.SugaredLogger
	NewID      func() string                     // fill ids; uuid if nil
	OnHalt     func(instrument string, err error) // called once when the engine halts
}

// Engine matches orders for one instrument. It is single-writer: every method
// must be called from the instrument's sequencer goroutine.
type Engine struct {
	inst   market.Instrument
	book   *orderbook.OrderBook
	orders *registry.Registry
	clock  util.Clock
	log    *zap.SugaredLogger
	newID  func() string
	onHalt func(string, error)

	arrivalSeq uint64
	fillSeq    uint64
	deadlines  map[string]*orderbook.Order // resting GTC orders with a good-till time
	touched    []*orderbook.Order
	halted     error
}

func New(cfg Config) *Engine {
	e := &Engine{
		inst:      cfg.Instrument,
		book:      orderbook.NewOrderBook(cfg.Instrument.ID),
		orders:    cfg.Registry,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		newID:     cfg.NewID,
		onHalt:    cfg.OnHalt,
		deadlines: make(map[string]*orderbook.Order),
	}
	if e.orders == nil {
		e.orders = registry.New()
	}
	if e.clock == nil {
		e.clock = util.RealClock{}
	}
	if e.log == nil {
		e.log = zap.NewNop().Sugar()
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

func (e *Engine) Instrument() string           { return e.inst.ID }
func (e *Engine) Registry() *registry.Registry { return e.orders }
func (e *Engine) FillSeq() uint64              { return e.fillSeq }
func (e *Engine) Halted() error                { return e.halted }

// Depth returns an aggregated view of the book.
func (e *Engine) Depth(n int) orderbook.Depth { return e.book.Depth(n) }

// ============================================================================
// Commands
// ============================================================================

// Submit validates, sequences and matches a new order. Invalid input returns
// ErrInvalidOrder and leaves all state untouched.
func (e *Engine) Submit(o *orderbook.Order) (Result, error) {
	if e.halted != nil {
		return Result{}, e.halted
	}
	if err := e.validate(o); err != nil {
		return Result{}, err
	}

	now := e.clock.Now()
	o.Seq = e.arrivalSeq + 1
	o.Filled = 0
	o.Status = orderbook.Pending
	o.Reason = orderbook.ReasonNone
	o.SubmittedAt = now
	o.UpdatedAt = now
	if err := e.orders.Register(o); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	e.arrivalSeq = o.Seq
	e.begin(o)

	var fills []Fill
	if o.TIF == orderbook.FOK && !e.fillable(o) {
		if err := o.Close(orderbook.EventCancel, orderbook.ReasonFOKUnfillable, now); err != nil {
			return e.halt(err)
		}
	} else {
		var err error
		if fills, err = e.match(o, now); err != nil {
			return e.halt(err)
		}
		if err := e.settleRemainder(o, now); err != nil {
			return e.halt(err)
		}
	}

	if err := e.verify(); err != nil {
		return e.halt(err)
	}
	return e.commit(o, fills), nil
}

// Cancel closes an open order. Terminal orders return ErrOrderNotCancellable.
func (e *Engine) Cancel(id string) (Result, error) {
	return e.close(id, orderbook.EventCancel, orderbook.ReasonUser)
}

// Expire closes an open order whose external deadline has passed.
func (e *Engine) Expire(id string) (Result, error) {
	return e.close(id, orderbook.EventExpire, orderbook.ReasonDeadline)
}

func (e *Engine) close(id string, ev orderbook.Event, reason orderbook.CancelReason) (Result, error) {
	if e.halted != nil {
		return Result{}, e.halted
	}
	o, ok := e.orders.Live(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if !o.Status.Open() {
		return Result{}, fmt.Errorf("%w: %s is %s", ErrOrderNotCancellable, id, o.Status)
	}

	e.begin(o)
	if _, err := e.book.Remove(id); err != nil {
		return e.halt(fmt.Errorf("open order not in book: %w", err))
	}
	delete(e.deadlines, id)
	if err := o.Close(ev, reason, e.clock.Now()); err != nil {
		return e.halt(err)
	}
	if err := e.verify(); err != nil {
		return e.halt(err)
	}
	return e.commit(o, nil), nil
}

// ExpireDue expires every resting order whose good-till time is at or before
// now, oldest arrival first. Result.Updated lists the expired orders.
func (e *Engine) ExpireDue(now time.Time) (Result, error) {
	if e.halted != nil {
		return Result{}, e.halted
	}
	due := make([]*orderbook.Order, 0)
	for _, o := range e.deadlines {
		if !now.Before(o.GoodTill) {
			due = append(due, o)
		}
	}
	if len(due) == 0 {
		return Result{}, nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Seq < due[j].Seq })

	e.begin(nil)
	for _, o := range due {
		e.touch(o)
		if _, err := e.book.Remove(o.ID); err != nil {
			return e.halt(fmt.Errorf("deadline order not in book: %w", err))
		}
		delete(e.deadlines, o.ID)
		if err := o.Close(orderbook.EventExpire, orderbook.ReasonDeadline, now); err != nil {
			return e.halt(err)
		}
	}
	if err := e.verify(); err != nil {
		return e.halt(err)
	}
	return e.commit(nil, nil), nil
}

// Restore loads previously journaled orders before the engine starts taking
// commands. Open orders are rested in arrival order without matching.
func (e *Engine) Restore(orders []orderbook.Order, lastFillSeq uint64) error {
	sorted := append([]orderbook.Order(nil), orders...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	for i := range sorted {
		o := &sorted[i]
		if err := e.orders.Register(o); err != nil {
			return err
		}
		if o.Seq > e.arrivalSeq {
			e.arrivalSeq = o.Seq
		}
		if !o.Status.Open() {
			continue
		}
		if err := e.book.Insert(o); err != nil {
			return fmt.Errorf("restore %s: %w", o.ID, err)
		}
		if !o.GoodTill.IsZero() {
			e.deadlines[o.ID] = o
		}
	}
	e.fillSeq = lastFillSeq

	if err := e.book.Check(); err != nil {
		_, herr := e.halt(fmt.Errorf("restored book: %w", err))
		return herr
	}
	return nil
}

// ============================================================================
// Matching
// ============================================================================

// crosses reports whether o may trade against a resting level at price.
func crosses(o *orderbook.Order, price int64) bool {
	if o.Type == orderbook.Market {
		return true
	}
	if o.Side == orderbook.Buy {
		return o.LimitPrice.Ticks >= price
	}
	return o.LimitPrice.Ticks <= price
}

// fillable reports whether o can be filled completely against the current
// book. It reads level totals only and mutates nothing.
func (e *Engine) fillable(o *orderbook.Order) bool {
	need := o.Remaining()
	e.book.Walk(o.Side.Opposite(), func(lvl *orderbook.PriceLevel) bool {
		if !crosses(o, lvl.Price) {
			return false
		}
		need -= lvl.TotalQty
		return need > 0
	})
	return need <= 0
}

// match walks the opposing side best price first, FIFO within a level,
// filling at the maker's price.
func (e *Engine) match(o *orderbook.Order, now time.Time) ([]Fill, error) {
	var fills []Fill
	opp := o.Side.Opposite()

	for o.Remaining() > 0 {
		lvl := e.book.Best(opp)
		if lvl == nil || !crosses(o, lvl.Price) {
			break
		}
		maker := lvl.Head()
		price := lvl.Price
		qty := min(o.Remaining(), maker.Remaining())

		if err := e.book.Consume(maker, qty, now); err != nil {
			return fills, err
		}
		if err := o.Fill(qty, now); err != nil {
			return fills, err
		}
		if maker.Remaining() == 0 {
			delete(e.deadlines, maker.ID)
		}
		e.touch(maker)

		e.fillSeq++
		fills = append(fills, Fill{
			ID:           e.newID(),
			Seq:          e.fillSeq,
			Instrument:   e.inst.ID,
			TakerOrderID: o.ID,
			MakerOrderID: maker.ID,
			TakerSide:    o.Side,
			Price:        price,
			Qty:          qty,
			Timestamp:    now,
		})
	}
	return fills, nil
}

// settleRemainder decides what happens to the unfilled part of a taker.
func (e *Engine) settleRemainder(o *orderbook.Order, now time.Time) error {
	if o.Remaining() == 0 {
		return nil
	}
	switch {
	case o.Type == orderbook.Market:
		return o.Close(orderbook.EventCancel, orderbook.ReasonMarketRemainder, now)
	case o.TIF == orderbook.IOC:
		return o.Close(orderbook.EventCancel, orderbook.ReasonIOCRemainder, now)
	case o.TIF == orderbook.FOK:
		return fmt.Errorf("fok order %s left %d unfilled after passing feasibility", o.ID, o.Remaining())
	default:
		if err := e.book.Insert(o); err != nil {
			return err
		}
		if !o.GoodTill.IsZero() {
			e.deadlines[o.ID] = o
		}
		return nil
	}
}

// ============================================================================
// Pass bookkeeping
// ============================================================================

func (e *Engine) begin(target *orderbook.Order) {
	e.touched = e.touched[:0]
	if target != nil {
		e.touch(target)
	}
}

func (e *Engine) touch(o *orderbook.Order) {
	for _, t := range e.touched {
		if t == o {
			return
		}
	}
	e.touched = append(e.touched, o)
}

// verify checks the book and every order the pass changed.
func (e *Engine) verify() error {
	if err := e.book.Check(); err != nil {
		return err
	}
	for _, o := range e.touched {
		if !o.Consistent() {
			return fmt.Errorf("order %s: status %s inconsistent with filled %d/%d", o.ID, o.Status, o.Filled, o.Qty)
		}
		if o.Status.Open() != o.Resting() {
			return fmt.Errorf("order %s: status %s but resting=%t", o.ID, o.Status, o.Resting())
		}
	}
	return nil
}

func (e *Engine) commit(target *orderbook.Order, fills []Fill) Result {
	e.orders.Commit(e.touched...)
	res := Result{Fills: fills, Updated: make([]orderbook.Order, 0, len(e.touched))}
	for _, o := range e.touched {
		res.Updated = append(res.Updated, o.Snapshot())
	}
	if target != nil {
		res.Order = target.Snapshot()
	}
	e.touched = e.touched[:0]
	return res
}

// halt stops the engine for good. The in-memory state is left as found so an
// operator can inspect it; no snapshot of the failed pass is committed.
func (e *Engine) halt(cause error) (Result, error) {
	e.halted = fmt.Errorf("%w: %s: %v", ErrEngineInvariantViolation, e.inst.ID, cause)
	e.log.Errorw("engine_invariant_violation",
		"instrument", e.inst.ID,
		"err", cause,
		"arrival_seq", e.arrivalSeq,
		"fill_seq", e.fillSeq,
		"resting", e.book.Len(),
		"book", e.book.Depth(0))
	e.touched = e.touched[:0]
	if e.onHalt != nil {
		e.onHalt(e.inst.ID, e.halted)
	}
	return Result{}, e.halted
}
