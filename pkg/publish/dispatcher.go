// Package publish fans engine batches out to the journal and downstream sinks
// off the matching path.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/storage"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

// Sink receives every batch after it has been journaled. Publish must be safe
// to call from the dispatcher goroutine only; sinks are called in order.
type Sink interface {
	Name() string
	Publish(ctx context.Context, b engine.Batch) error
}

// Observer is told the outcome of every journal append and sink publish.
type Observer interface {
	Delivered(sink string, took time.Duration, err error)
	Backlog(n int)
}

type Dispatcher struct {
	journal   storage.Journal
	sinks     []Sink
	obs       Observer
	log       *zap.SugaredLogger
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	onFailure func(instrument string, err error)

	failed map[string]error // instruments whose journal fell behind; Run goroutine only

	in        chan engine.Batch
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

type DispatcherConfig struct {
	Journal storage.Journal // required; use storage.NewMemJournal for none
	Sinks   []Sink
	Buffer  int
	Timeout time.Duration // per sink publish
	Logger  *zap.SugaredLogger
	Obs     Observer

	// JournalRetries is how many times a failed append is retried before the
	// instrument is given up on (3 if unset). RetryBackoff grows linearly per
	// attempt.
	JournalRetries int
	RetryBackoff   time.Duration
	// OnJournalFailure is called once per instrument whose batches can no
	// longer be journaled. Later batches for it are dropped unpublished.
	OnJournalFailure func(instrument string, err error)
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.JournalRetries <= 0 {
		cfg.JournalRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &Dispatcher{
		journal:   cfg.Journal,
		sinks:     cfg.Sinks,
		obs:       cfg.Obs,
		log:       cfg.Logger,
		timeout:   cfg.Timeout,
		retries:   cfg.JournalRetries,
		backoff:   cfg.RetryBackoff,
		onFailure: cfg.OnJournalFailure,
		failed:    make(map[string]error),
		in:        make(chan engine.Batch, cfg.Buffer),
		done:      make(chan struct{}),
	}
}

// Enqueue hands a batch to the dispatcher, blocking while the buffer is full.
// ctx only bounds that wait: a batch that fits is always accepted.
func (d *Dispatcher) Enqueue(ctx context.Context, b engine.Batch) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.in <- b:
	default:
		select {
		case d.in <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.obs != nil {
		d.obs.Backlog(len(d.in))
	}
	return nil
}

// Close stops intake. Run delivers what is already buffered, then returns.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.in)
		d.mu.Unlock()
	})
}

// Done is closed once Run has delivered every buffered batch.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Run delivers batches in arrival order until Close is called and the buffer
// is empty.
func (d *Dispatcher) Run() {
	defer close(d.done)
	d.log.Infow("dispatcher_started", "sinks", d.sinkNames(), "buffer", cap(d.in))

	for b := range d.in {
		d.deliver(b)
		if d.obs != nil {
			d.obs.Backlog(len(d.in))
		}
	}
	d.log.Infow("dispatcher_stopped")
}

// deliver journals b and only then publishes it. Sinks never see a batch the
// journal does not hold, so a fill seq seen downstream is never reissued
// after a restart.
func (d *Dispatcher) deliver(b engine.Batch) {
	if cause, ok := d.failed[b.Instrument]; ok {
		d.log.Warnw("batch_dropped_unjournaled",
			"instrument", b.Instrument,
			"fills", len(b.Fills),
			"orders", len(b.Orders),
			"cause", cause)
		return
	}
	if err := d.append(b); err != nil {
		d.failed[b.Instrument] = err
		d.log.Errorw("journal_append_failed",
			"instrument", b.Instrument,
			"fills", len(b.Fills),
			"orders", len(b.Orders),
			"err", err)
		if d.onFailure != nil {
			d.onFailure(b.Instrument, err)
		}
		return
	}

	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		start := time.Now()
		err := s.Publish(ctx, b)
		cancel()
		d.report(s.Name(), start, err)
		if err != nil {
			d.log.Warnw("sink_publish_failed",
				"sink", s.Name(),
				"instrument", b.Instrument,
				"fills", len(b.Fills),
				"err", err)
		}
	}
}

// append writes b to the journal, retrying failed attempts. Appends are
// atomic, so a retry never duplicates part of a batch.
func (d *Dispatcher) append(b engine.Batch) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := d.journal.Append(b)
		d.report("journal", start, err)
		if err == nil {
			return nil
		}
		if attempt >= d.retries {
			return fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}
		d.log.Warnw("journal_append_retry", "instrument", b.Instrument, "attempt", attempt+1, "err", err)
		time.Sleep(time.Duration(attempt+1) * d.backoff)
	}
}

func (d *Dispatcher) report(name string, start time.Time, err error) {
	if d.obs != nil {
		d.obs.Delivered(name, time.Since(start), err)
	}
}

func (d *Dispatcher) sinkNames() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}
