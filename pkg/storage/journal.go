package storage

import (
	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

// Journal persists the batches the engines publish so instruments can be
// rebuilt at startup and fill history can be queried.
type Journal interface {
	// Append stores one batch atomically.
	Append(b engine.Batch) error
	// Orders returns the latest stored snapshot of every order of instrument.
	Orders(instrument string) ([]orderbook.Order, error)
	// FillsAfter returns up to limit fills with Seq > afterSeq, oldest first.
	// limit <= 0 means no limit.
	FillsAfter(instrument string, afterSeq uint64, limit int) ([]engine.Fill, error)
	// LastFillSeq is the highest stored fill seq, 0 if none.
	LastFillSeq(instrument string) (uint64, error)
	Close() error
}
