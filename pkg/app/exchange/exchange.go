// Package exchange is the entry point for order flow. It routes each command
// to the sequencer of the order's instrument and answers reads from the
// registries and the journal.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/market"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
	"github.com/uhyunpark/tradepost/pkg/app/core/registry"
	"github.com/uhyunpark/tradepost/pkg/app/core/sequencer"
	"github.com/uhyunpark/tradepost/pkg/metrics"
	"github.com/uhyunpark/tradepost/pkg/storage"
	"github.com/uhyunpark/tradepost/pkg/util"
)

// OrderRequest is a new order as received from a client.
type OrderRequest struct {
	ID         string // assigned if empty
	Instrument string
	Owner      string
	Side       orderbook.Side
	Type       orderbook.OrderType
	TIF        orderbook.TimeInForce
	Qty        int64
	Price      orderbook.Price
	GoodTill   time.Time
}

// Dispatcher is where engines hand their batches. Close is called once every
// sequencer has stopped.
type Dispatcher interface {
	sequencer.Publisher
	Close()
}

type Config struct {
	Catalog         *market.Catalog
	Journal         storage.Journal
	Dispatcher      Dispatcher
	Clock           util.Clock
	Logger          *zap.SugaredLogger
	Metrics         *metrics.Metrics
	SequencerBuffer int
	ExpirySweep     time.Duration // 0 disables the sweeper
	NewID           func() string
}

type book struct {
	eng   *engine.Engine
	queue *sequencer.Queue
	reg   *registry.Registry
}

type Exchange struct {
	catalog *market.Catalog
	journal storage.Journal
	disp    Dispatcher
	clock   util.Clock
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	sweep   time.Duration
	newID   func() string

	books  map[string]*book // fixed after New
	ids    sync.Map         // order id → instrument id
	halted sync.Map         // instrument id → reason it stopped taking commands
}

// New builds one engine per catalog instrument and restores each from the
// journal. An instrument whose journal state fails its checks starts halted.
func New(cfg Config) (*Exchange, error) {
	if cfg.Catalog == nil || cfg.Journal == nil {
		return nil, fmt.Errorf("exchange needs a catalog and a journal")
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	x := &Exchange{
		catalog: cfg.Catalog,
		journal: cfg.Journal,
		disp:    cfg.Dispatcher,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		sweep:   cfg.ExpirySweep,
		newID:   cfg.NewID,
		books:   make(map[string]*book),
	}

	var pub sequencer.Publisher
	if cfg.Dispatcher != nil {
		pub = cfg.Dispatcher
	}
	for _, in := range cfg.Catalog.List() {
		reg := registry.New()
		eng := engine.New(engine.Config{
			Instrument: in,
			Registry:   reg,
			Clock:      cfg.Clock,
			Logger:     cfg.Logger,
			OnHalt:     x.onHalt,
		})
		b := &book{
			eng:   eng,
			reg:   reg,
			queue: sequencer.New(eng, cfg.SequencerBuffer, pub, cfg.Metrics, cfg.Logger),
		}
		if err := x.restore(in.ID, b); err != nil {
			return nil, err
		}
		x.books[in.ID] = b
		cfg.Metrics.SetHalted(in.ID, eng.Halted() != nil)
	}
	return x, nil
}

// Run drives every sequencer and the expiry sweeper until ctx is cancelled,
// then closes the dispatcher so it can drain.
func (x *Exchange) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range x.books {
		q := b.queue
		g.Go(func() error {
			q.Run(gctx)
			return nil
		})
	}
	if x.sweep > 0 {
		g.Go(func() error {
			x.runSweeper(gctx)
			return nil
		})
	}
	err := g.Wait()
	if x.disp != nil {
		x.disp.Close()
	}
	return err
}

func (x *Exchange) onHalt(instrument string, err error) {
	x.halted.Store(instrument, err)
	x.log.Errorw("instrument_halted", "instrument", instrument, "err", err)
	if serr := x.catalog.SetStatus(instrument, market.Halted); serr != nil {
		x.log.Warnw("instrument_status_update_failed", "instrument", instrument, "err", serr)
	}
	x.metrics.SetHalted(instrument, true)
}

// Suspend stops an instrument whose batches can no longer be journaled. It is
// safe to call from any goroutine.
func (x *Exchange) Suspend(instrument string, cause error) {
	err := fmt.Errorf("%w: %s: journal write failed: %v", engine.ErrInstrumentHalted, instrument, cause)
	if _, loaded := x.halted.LoadOrStore(instrument, err); loaded {
		return
	}
	x.log.Errorw("instrument_suspended", "instrument", instrument, "err", cause)
	if serr := x.catalog.SetStatus(instrument, market.Halted); serr != nil {
		x.log.Warnw("instrument_status_update_failed", "instrument", instrument, "err", serr)
	}
	x.metrics.SetHalted(instrument, true)
}

// stopped returns why an instrument refuses commands, or nil.
func (x *Exchange) stopped(instrument string) error {
	if cause, ok := x.halted.Load(instrument); ok {
		return cause.(error)
	}
	return nil
}

func (x *Exchange) book(instrument string) (*book, error) {
	b, ok := x.books[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrInstrumentUnknown, instrument)
	}
	return b, nil
}

func (x *Exchange) bookOf(orderID string) (*book, error) {
	inst, ok := x.ids.Load(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrOrderNotFound, orderID)
	}
	return x.book(inst.(string))
}

// commandBook is bookOf for commands: it also refuses stopped instruments.
func (x *Exchange) commandBook(orderID string) (*book, error) {
	b, err := x.bookOf(orderID)
	if err != nil {
		return nil, err
	}
	if err := x.stopped(b.eng.Instrument()); err != nil {
		return nil, err
	}
	return b, nil
}

// ============================================================================
// Commands
// ============================================================================

// SubmitOrder accepts a new order and returns its state after matching,
// together with the fills it produced.
func (x *Exchange) SubmitOrder(ctx context.Context, req OrderRequest) (engine.Result, error) {
	if err := x.stopped(req.Instrument); err != nil {
		return engine.Result{}, err
	}
	if _, err := x.catalog.Tradeable(req.Instrument); err != nil {
		return engine.Result{}, err
	}
	b, err := x.book(req.Instrument)
	if err != nil {
		return engine.Result{}, err
	}

	id := req.ID
	if id == "" {
		id = x.newID()
	}
	if prev, loaded := x.ids.LoadOrStore(id, req.Instrument); loaded {
		return engine.Result{}, fmt.Errorf("%w: duplicate order id %s (instrument %s)", engine.ErrInvalidOrder, id, prev)
	}

	o := &orderbook.Order{
		ID:         id,
		Instrument: req.Instrument,
		Owner:      req.Owner,
		Side:       req.Side,
		Type:       req.Type,
		TIF:        req.TIF,
		Qty:        req.Qty,
		LimitPrice: req.Price,
		GoodTill:   req.GoodTill,
	}
	res, err := b.queue.Submit(ctx, o)
	if err != nil {
		x.release(b, id, err)
		return engine.Result{}, err
	}
	return res, nil
}

// release frees a reserved id when the engine never registered the order.
// After a context error the command may still run, so the id stays taken.
func (x *Exchange) release(b *book, id string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if _, ok := b.reg.Get(id); !ok {
		x.ids.Delete(id)
	}
}

// CancelOrder cancels an open order on behalf of its owner.
func (x *Exchange) CancelOrder(ctx context.Context, id string) (orderbook.Order, error) {
	b, err := x.commandBook(id)
	if err != nil {
		return orderbook.Order{}, err
	}
	res, err := b.queue.Cancel(ctx, id)
	return res.Order, err
}

// ExpireOrder closes an open order whose deadline an external scheduler has
// decided has passed.
func (x *Exchange) ExpireOrder(ctx context.Context, id string) (orderbook.Order, error) {
	b, err := x.commandBook(id)
	if err != nil {
		return orderbook.Order{}, err
	}
	res, err := b.queue.Expire(ctx, id)
	return res.Order, err
}

// ============================================================================
// Reads
// ============================================================================

// GetOrder returns the last committed state of an order.
func (x *Exchange) GetOrder(id string) (orderbook.Order, error) {
	b, err := x.bookOf(id)
	if err != nil {
		return orderbook.Order{}, err
	}
	o, ok := b.reg.Get(id)
	if !ok {
		return orderbook.Order{}, fmt.Errorf("%w: %s", engine.ErrOrderNotFound, id)
	}
	return o, nil
}

// OpenOrders lists an instrument's open orders in arrival order, optionally
// only those of one owner.
func (x *Exchange) OpenOrders(instrument, owner string) ([]orderbook.Order, error) {
	b, err := x.book(instrument)
	if err != nil {
		return nil, err
	}
	return b.reg.List(func(o orderbook.Order) bool {
		return o.Status.Open() && (owner == "" || o.Owner == owner)
	}), nil
}

// Depth returns up to n aggregated levels per side; n <= 0 means all.
func (x *Exchange) Depth(ctx context.Context, instrument string, n int) (orderbook.Depth, error) {
	b, err := x.book(instrument)
	if err != nil {
		return orderbook.Depth{}, err
	}
	return b.queue.Depth(ctx, n)
}

// Fills returns journaled fills with seq > afterSeq. The journal is written
// asynchronously, so the newest fills may not be visible yet.
func (x *Exchange) Fills(instrument string, afterSeq uint64, limit int) ([]engine.Fill, error) {
	if _, err := x.book(instrument); err != nil {
		return nil, err
	}
	return x.journal.FillsAfter(instrument, afterSeq, limit)
}

func (x *Exchange) Instruments() []market.Instrument { return x.catalog.List() }

func (x *Exchange) Instrument(id string) (market.Instrument, error) { return x.catalog.Get(id) }
