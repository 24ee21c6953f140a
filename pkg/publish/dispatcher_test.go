package publish

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
	"github.com/uhyunpark/tradepost/pkg/storage"
)

type memSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []engine.Batch
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Publish(_ context.Context, b engine.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, b)
	return s.err
}

type countingObs struct {
	mu     sync.Mutex
	failed map[string]int
}

func (o *countingObs) Delivered(sink string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed[sink]++
	}
}

func (o *countingObs) Backlog(int) {}

func batch(inst string, seq uint64) engine.Batch {
	return engine.Batch{
		Instrument: inst,
		Fills: []engine.Fill{{
			ID: "f", Seq: seq, Instrument: inst, TakerOrderID: "t", MakerOrderID: "m",
			TakerSide: orderbook.Buy, Price: 100, Qty: 1, Timestamp: time.Unix(0, 0).UTC(),
		}},
		Orders: []orderbook.Order{{ID: "m", Instrument: inst, Side: orderbook.Sell, Seq: 1, Qty: 1, Filled: 1, Status: orderbook.Filled}},
	}
}

func TestDispatcherDeliversInOrderAndDrains(t *testing.T) {
	journal := storage.NewMemJournal()
	good := &memSink{name: "good"}
	bad := &memSink{name: "bad", err: errors.New("broker down")}
	obs := &countingObs{failed: map[string]int{}}

	d := NewDispatcher(DispatcherConfig{
		Journal: journal,
		Sinks:   []Sink{bad, good},
		Buffer:  8,
		Obs:     obs,
	})

	ctx := context.Background()
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, d.Enqueue(ctx, batch("GUILD", seq)))
	}
	go d.Run()
	d.Close()
	<-d.Done()

	// a failing sink does not stop delivery to the others
	require.Len(t, good.got, 5)
	for i, b := range good.got {
		assert.Equal(t, uint64(i+1), b.Fills[0].Seq)
	}
	assert.Equal(t, 5, obs.failed["bad"])
	assert.Zero(t, obs.failed["good"])

	seq, err := journal.LastFillSeq("GUILD")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)

	assert.ErrorIs(t, d.Enqueue(ctx, batch("GUILD", 6)), ErrDispatcherClosed)
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Journal: storage.NewMemJournal(), Buffer: 1})
	require.NoError(t, d.Enqueue(context.Background(), batch("GUILD", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Enqueue(ctx, batch("GUILD", 2)), context.DeadlineExceeded)
}

func TestEventsFlattenBatch(t *testing.T) {
	now := time.Unix(10, 0).UTC()
	evs := Events(batch("GUILD", 7), now)
	require.Len(t, evs, 2)
	assert.Equal(t, "fill", evs[0].Type)
	assert.Equal(t, uint64(7), evs[0].Seq)
	assert.Equal(t, "order", evs[1].Type)
	assert.Equal(t, "m", evs[1].Order.ID)
	assert.Equal(t, now, evs[1].EmittedAt)
}

func TestKafkaMessagesKeyedByInstrument(t *testing.T) {
	msgs, err := kafkaMessages(batch("GUILD", 3), time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "GUILD", string(m.Key))
	}
	assert.Equal(t, "fill", string(msgs[0].Headers[0].Value))

	var ev Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	require.NotNil(t, ev.Fill)
	assert.Equal(t, uint64(3), ev.Fill.Seq)
	assert.Equal(t, orderbook.Buy, ev.Fill.TakerSide)
}

func TestPostgresBatchQueuesEveryRow(t *testing.T) {
	b := batch("GUILD", 1)
	b.Orders = append(b.Orders, orderbook.Order{ID: "mkt", Instrument: "GUILD", Type: orderbook.Market, Qty: 1})
	assert.Equal(t, 3, postgresBatch(b).Len())
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Publish(context.Background(), batch("GUILD", 1)))
	require.NoError(t, s.Publish(context.Background(), batch("GUILD", 2)))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var types []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"fill", "order", "fill", "order"}, types)
}

func TestEnqueueAcceptsWhileRoomDespiteCancelledContext(t *testing.T) {
	journal := storage.NewMemJournal()
	d := NewDispatcher(DispatcherConfig{Journal: journal, Buffer: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for seq := uint64(1); seq <= 200; seq++ {
		require.NoError(t, d.Enqueue(ctx, batch("GUILD", seq)), "seq %d", seq)
	}
	go d.Run()
	d.Close()
	<-d.Done()

	fills, err := journal.FillsAfter("GUILD", 0, 0)
	require.NoError(t, err)
	assert.Len(t, fills, 200)
}

// flakyJournal fails the first n appends for one instrument; n < 0 fails
// every append for it.
type flakyJournal struct {
	storage.Journal
	instrument string

	mu sync.Mutex
	n  int
}

func (j *flakyJournal) Append(b engine.Batch) error {
	j.mu.Lock()
	if b.Instrument == j.instrument && j.n != 0 {
		j.n--
		j.mu.Unlock()
		return errors.New("disk full")
	}
	j.mu.Unlock()
	return j.Journal.Append(b)
}

func TestJournalAppendIsRetried(t *testing.T) {
	journal := &flakyJournal{Journal: storage.NewMemJournal(), instrument: "GUILD", n: 2}
	sink := &memSink{name: "sink"}
	var failures []string

	d := NewDispatcher(DispatcherConfig{
		Journal:          journal,
		Sinks:            []Sink{sink},
		Buffer:           4,
		RetryBackoff:     time.Millisecond,
		OnJournalFailure: func(inst string, _ error) { failures = append(failures, inst) },
	})
	require.NoError(t, d.Enqueue(context.Background(), batch("GUILD", 1)))
	go d.Run()
	d.Close()
	<-d.Done()

	assert.Empty(t, failures)
	assert.Len(t, sink.got, 1)
	seq, err := journal.LastFillSeq("GUILD")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestUnjournaledBatchesAreNeverPublished(t *testing.T) {
	journal := &flakyJournal{Journal: storage.NewMemJournal(), instrument: "GUILD", n: -1}
	sink := &memSink{name: "sink"}
	var failures []string

	d := NewDispatcher(DispatcherConfig{
		Journal:          journal,
		Sinks:            []Sink{sink},
		Buffer:           8,
		JournalRetries:   2,
		RetryBackoff:     time.Millisecond,
		OnJournalFailure: func(inst string, _ error) { failures = append(failures, inst) },
	})
	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, batch("GUILD", 7)))
	require.NoError(t, d.Enqueue(ctx, batch("IRON_SWORD", 1)))
	require.NoError(t, d.Enqueue(ctx, batch("GUILD", 8)))
	go d.Run()
	d.Close()
	<-d.Done()

	assert.Equal(t, []string{"GUILD"}, failures, "reported once")
	require.Len(t, sink.got, 1)
	assert.Equal(t, "IRON_SWORD", sink.got[0].Instrument)

	seq, err := journal.LastFillSeq("GUILD")
	require.NoError(t, err)
	assert.Zero(t, seq)
	seq, err = journal.LastFillSeq("IRON_SWORD")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}
