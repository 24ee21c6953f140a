package publish

import (
	"time"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

// Event is the wire form every external sink emits: one record per fill or
// order update, in pass order.
type Event struct {
	Type       string           `json:"type"` // "fill" or "order"
	Instrument string           `json:"instrument"`
	Seq        uint64           `json:"seq"` // fill seq, or order arrival seq
	Fill       *engine.Fill     `json:"fill,omitempty"`
	Order      *orderbook.Order `json:"order,omitempty"`
	EmittedAt  time.Time        `json:"emittedAt"`
}

// Events flattens a batch: fills first, then order updates.
func Events(b engine.Batch, now time.Time) []Event {
	out := make([]Event, 0, len(b.Fills)+len(b.Orders))
	for i := range b.Fills {
		f := b.Fills[i]
		out = append(out, Event{Type: "fill", Instrument: b.Instrument, Seq: f.Seq, Fill: &f, EmittedAt: now})
	}
	for i := range b.Orders {
		o := b.Orders[i]
		out = append(out, Event{Type: "order", Instrument: b.Instrument, Seq: o.Seq, Order: &o, EmittedAt: now})
	}
	return out
}
