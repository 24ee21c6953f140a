package engine

import (
	"fmt"

	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, fmt.Sprintf(format, args...))
}

// validate rejects malformed input before anything is mutated.
func (e *Engine) validate(o *orderbook.Order) error {
	if o == nil {
		return invalidf("nil order")
	}
	if o.ID == "" {
		return invalidf("order id required")
	}
	if o.Instrument != e.inst.ID {
		return invalidf("order %s is for %q, engine trades %q", o.ID, o.Instrument, e.inst.ID)
	}
	if e.orders.Contains(o.ID) {
		return invalidf("duplicate order id %s", o.ID)
	}
	if o.Filled != 0 || o.Resting() {
		return invalidf("order %s already has executions", o.ID)
	}

	switch o.Side {
	case orderbook.Buy, orderbook.Sell:
	default:
		return invalidf("unknown side %d", o.Side)
	}

	if err := e.inst.ValidateQty(o.Qty); err != nil {
		return invalidf("%v", err)
	}

	switch o.Type {
	case orderbook.Limit:
		if !o.LimitPrice.Set {
			return invalidf("limit order requires a limit price")
		}
		if o.LimitPrice.Ticks <= 0 {
			return invalidf("limit price must be positive, got %d", o.LimitPrice.Ticks)
		}
	case orderbook.Market:
		if o.LimitPrice.Set {
			return invalidf("market order cannot carry a limit price")
		}
	default:
		return invalidf("unknown order type %d", o.Type)
	}

	switch o.TIF {
	case orderbook.GTC, orderbook.IOC, orderbook.FOK:
	default:
		return invalidf("unknown time in force %d", o.TIF)
	}

	if !o.GoodTill.IsZero() && (o.Type != orderbook.Limit || o.TIF != orderbook.GTC) {
		return invalidf("good-till applies only to GTC limit orders")
	}
	return nil
}
