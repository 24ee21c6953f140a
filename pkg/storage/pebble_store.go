package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

type PebbleJournal struct {
	db *pebble.DB
}

func NewPebbleJournal(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleJournal{db: db}, nil
}

func (j *PebbleJournal) Close() error { return j.db.Close() }

// Append writes the fills, the order snapshots and the new fill seq in one
// synced batch.
func (j *PebbleJournal) Append(b engine.Batch) error {
	batch := j.db.NewBatch()
	defer batch.Close()

	var last uint64
	for _, f := range b.Fills {
		val, err := encodeJSON(f)
		if err != nil {
			return err
		}
		if err := batch.Set(fillKey(b.Instrument, f.Seq), val, nil); err != nil {
			return fmt.Errorf("stage fill %d: %w", f.Seq, err)
		}
		last = max(last, f.Seq)
	}
	for _, o := range b.Orders {
		val, err := encodeJSON(o)
		if err != nil {
			return err
		}
		if err := batch.Set(orderKey(b.Instrument, o.ID), val, nil); err != nil {
			return fmt.Errorf("stage order %s: %w", o.ID, err)
		}
	}
	if last > 0 {
		if err := batch.Set(seqKey(b.Instrument), encodeSeq(last), nil); err != nil {
			return fmt.Errorf("stage seq: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch for %s: %w", b.Instrument, err)
	}
	return nil
}

func (j *PebbleJournal) Orders(instrument string) ([]orderbook.Order, error) {
	prefix := orderPrefix(instrument)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []orderbook.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o orderbook.Order
		if err := decodeJSON(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("order key %s: %w", iter.Key(), err)
		}
		orders = append(orders, o)
	}
	return orders, iter.Error()
}

func (j *PebbleJournal) FillsAfter(instrument string, afterSeq uint64, limit int) ([]engine.Fill, error) {
	prefix := fillPrefix(instrument)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: fillKey(instrument, afterSeq+1),
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	fills := make([]engine.Fill, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(fills) >= limit {
			break
		}
		var f engine.Fill
		if err := decodeJSON(iter.Value(), &f); err != nil {
			return nil, fmt.Errorf("fill key %s: %w", iter.Key(), err)
		}
		fills = append(fills, f)
	}
	return fills, iter.Error()
}

func (j *PebbleJournal) LastFillSeq(instrument string) (uint64, error) {
	val, closer, err := j.db.Get(seqKey(instrument))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get seq for %s: %w", instrument, err)
	}
	defer closer.Close()
	return decodeSeq(val)
}

var _ Journal = (*PebbleJournal)(nil)
