package storage

import (
	"sort"
	"sync"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

// MemJournal keeps everything in process memory. Nothing survives a restart.
type MemJournal struct {
	mu     sync.RWMutex
	fills  map[string][]engine.Fill
	orders map[string]map[string]orderbook.Order
}

func NewMemJournal() *MemJournal {
	return &MemJournal{
		fills:  make(map[string][]engine.Fill),
		orders: make(map[string]map[string]orderbook.Order),
	}
}

func (j *MemJournal) Append(b engine.Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.fills[b.Instrument] = append(j.fills[b.Instrument], b.Fills...)
	byID, ok := j.orders[b.Instrument]
	if !ok {
		byID = make(map[string]orderbook.Order)
		j.orders[b.Instrument] = byID
	}
	for _, o := range b.Orders {
		byID[o.ID] = o
	}
	return nil
}

func (j *MemJournal) Orders(instrument string) ([]orderbook.Order, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]orderbook.Order, 0, len(j.orders[instrument]))
	for _, o := range j.orders[instrument] {
		out = append(out, o)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

func (j *MemJournal) FillsAfter(instrument string, afterSeq uint64, limit int) ([]engine.Fill, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	all := j.fills[instrument]
	i := sort.Search(len(all), func(i int) bool { return all[i].Seq > afterSeq })
	rest := all[i:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return append([]engine.Fill(nil), rest...), nil
}

func (j *MemJournal) LastFillSeq(instrument string) (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	all := j.fills[instrument]
	if len(all) == 0 {
		return 0, nil
	}
	return all[len(all)-1].Seq, nil
}

func (j *MemJournal) Close() error { return nil }

var _ Journal = (*MemJournal)(nil)
