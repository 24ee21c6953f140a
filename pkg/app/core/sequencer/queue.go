// Package sequencer serializes all commands for one instrument onto a single
// goroutine that owns the instrument's engine.
package sequencer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

type CmdType int8

const (
	CmdSubmit CmdType = iota
	CmdCancel
	CmdExpire
	CmdExpireDue
	CmdDepth
)

func (t CmdType) String() string {
	switch t {
	case CmdSubmit:
		return "submit"
	case CmdCancel:
		return "cancel"
	case CmdExpire:
		return "expire"
	case CmdExpireDue:
		return "expire_due"
	case CmdDepth:
		return "depth"
	default:
		return "unknown"
	}
}

type Command struct {
	Type  CmdType
	Order *orderbook.Order
	ID    string
	At    time.Time
	Depth int
	Resp  chan Reply
}

type Reply struct {
	Result engine.Result
	Depth  orderbook.Depth
	Err    error
}

// Publisher receives the batch of every pass that changed state. Enqueue may
// block; that is the backpressure on the instrument. The ctx passed to it is
// never cancelled, so the publisher must keep draining until every queue
// feeding it has stopped.
type Publisher interface {
	Enqueue(ctx context.Context, b engine.Batch) error
}

// Observer is told the outcome of every command. Optional.
type Observer interface {
	Observe(instrument string, cmd CmdType, res engine.Result, err error, took time.Duration)
}

type Queue struct {
	eng  *engine.Engine
	pub  Publisher
	obs  Observer
	log  *zap.SugaredLogger
	cmds chan Command
	done chan struct{}
}

func New(eng *engine.Engine, buffer int, pub Publisher, obs Observer, logger *zap.SugaredLogger) *Queue {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Queue{
		eng:  eng,
		pub:  pub,
		obs:  obs,
		log:  logger,
		cmds: make(chan Command, buffer),
		done: make(chan struct{}),
	}
}

func (q *Queue) Instrument() string { return q.eng.Instrument() }

// Done is closed when Run returns.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Run applies commands one at a time until ctx is cancelled. Commands still
// buffered at shutdown are answered with ErrEngineStopped.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	q.log.Infow("sequencer_started", "instrument", q.eng.Instrument())

	for {
		select {
		case cmd := <-q.cmds:
			cmd.Resp <- q.apply(ctx, cmd)

		case <-ctx.Done():
			q.drain()
			q.log.Infow("sequencer_stopped", "instrument", q.eng.Instrument(), "fill_seq", q.eng.FillSeq())
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case cmd := <-q.cmds:
			cmd.Resp <- Reply{Err: engine.ErrEngineStopped}
		default:
			return
		}
	}
}

func (q *Queue) apply(ctx context.Context, cmd Command) Reply {
	start := time.Now()
	var (
		res engine.Result
		err error
	)
	switch cmd.Type {
	case CmdSubmit:
		res, err = q.eng.Submit(cmd.Order)
	case CmdCancel:
		res, err = q.eng.Cancel(cmd.ID)
	case CmdExpire:
		res, err = q.eng.Expire(cmd.ID)
	case CmdExpireDue:
		res, err = q.eng.ExpireDue(cmd.At)
	case CmdDepth:
		return Reply{Depth: q.eng.Depth(cmd.Depth)}
	}

	if q.obs != nil {
		q.obs.Observe(q.eng.Instrument(), cmd.Type, res, err, time.Since(start))
	}
	if err == nil && !res.Empty() && q.pub != nil {
		// The pass is already applied and answered; stopping the queue must not
		// lose its batch.
		if perr := q.pub.Enqueue(context.WithoutCancel(ctx), res.Batch(q.eng.Instrument())); perr != nil {
			q.log.Warnw("batch_dropped",
				"instrument", q.eng.Instrument(),
				"cmd", cmd.Type.String(),
				"fills", len(res.Fills),
				"err", perr)
		}
	}
	return Reply{Result: res, Err: err}
}

// do hands cmd to the worker and waits for its reply. A command that reached
// the worker runs to completion even if ctx is cancelled while waiting.
func (q *Queue) do(ctx context.Context, cmd Command) (Reply, error) {
	cmd.Resp = make(chan Reply, 1)

	select {
	case q.cmds <- cmd:
	case <-q.done:
		return Reply{}, engine.ErrEngineStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case r := <-cmd.Resp:
		return r, r.Err
	case <-q.done:
		select {
		case r := <-cmd.Resp:
			return r, r.Err
		default:
			return Reply{}, engine.ErrEngineStopped
		}
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (q *Queue) Submit(ctx context.Context, o *orderbook.Order) (engine.Result, error) {
	r, err := q.do(ctx, Command{Type: CmdSubmit, Order: o})
	return r.Result, err
}

func (q *Queue) Cancel(ctx context.Context, id string) (engine.Result, error) {
	r, err := q.do(ctx, Command{Type: CmdCancel, ID: id})
	return r.Result, err
}

func (q *Queue) Expire(ctx context.Context, id string) (engine.Result, error) {
	r, err := q.do(ctx, Command{Type: CmdExpire, ID: id})
	return r.Result, err
}

func (q *Queue) ExpireDue(ctx context.Context, now time.Time) (engine.Result, error) {
	r, err := q.do(ctx, Command{Type: CmdExpireDue, At: now})
	return r.Result, err
}

// Depth reads the book on the worker, so it never races a pass.
func (q *Queue) Depth(ctx context.Context, n int) (orderbook.Depth, error) {
	r, err := q.do(ctx, Command{Type: CmdDepth, Depth: n})
	return r.Depth, err
}
