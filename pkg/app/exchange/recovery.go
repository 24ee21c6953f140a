package exchange

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
)

// restore rebuilds an instrument from the journal. A journal that cannot be
// read fails startup; one whose state breaks the book's invariants leaves the
// instrument halted.
func (x *Exchange) restore(instrument string, b *book) error {
	orders, err := x.journal.Orders(instrument)
	if err != nil {
		return fmt.Errorf("load orders for %s: %w", instrument, err)
	}
	lastSeq, err := x.journal.LastFillSeq(instrument)
	if err != nil {
		return fmt.Errorf("load fill seq for %s: %w", instrument, err)
	}
	if len(orders) == 0 && lastSeq == 0 {
		return nil
	}

	for _, o := range orders {
		x.ids.Store(o.ID, instrument)
	}
	if err := b.eng.Restore(orders, lastSeq); err != nil {
		if errors.Is(err, engine.ErrEngineInvariantViolation) {
			return nil
		}
		return fmt.Errorf("restore %s: %w", instrument, err)
	}

	open := 0
	for _, o := range orders {
		if o.Status.Open() {
			open++
		}
	}
	x.log.Infow("instrument_restored",
		"instrument", instrument,
		"orders", len(orders),
		"open", open,
		"fill_seq", lastSeq)
	return nil
}
