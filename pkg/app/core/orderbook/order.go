package orderbook

import (
	"fmt"
	"strings"
	"time"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side a taker on s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "bid":
		return Buy, nil
	case "sell", "ask":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

type OrderType int8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return "unknown"
	}
}

func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "limit", "":
		return Limit, nil
	case "market":
		return Market, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

type TimeInForce int8

const (
	GTC TimeInForce = iota // rests until filled, cancelled or expired
	IOC                    // remainder cancelled after the matching pass
	FOK                    // all or nothing in a single pass
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "unknown"
	}
}

func ParseTimeInForce(s string) (TimeInForce, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GTC", "":
		return GTC, nil
	case "IOC":
		return IOC, nil
	case "FOK":
		return FOK, nil
	default:
		return 0, fmt.Errorf("unknown time in force %q", s)
	}
}

// Price is an optional limit price in integer ticks.
// Only limit orders carry one.
type Price struct {
	Ticks int64 `json:"ticks"`
	Set   bool  `json:"set"`
}

// LimitAt returns a set price of the given ticks.
func LimitAt(ticks int64) Price { return Price{Ticks: ticks, Set: true} }

// NoPrice is the absent limit price of a market order.
var NoPrice = Price{}

// CancelReason records why an order was closed without a full fill.
type CancelReason int8

const (
	ReasonNone CancelReason = iota
	ReasonUser
	ReasonIOCRemainder
	ReasonFOKUnfillable
	ReasonMarketRemainder
	ReasonDeadline
)

func (r CancelReason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonUser:
		return "user"
	case ReasonIOCRemainder:
		return "ioc_remainder"
	case ReasonFOKUnfillable:
		return "fok_unfillable"
	case ReasonMarketRemainder:
		return "market_remainder"
	case ReasonDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

// Order is the mutable state of one order. Only the owning engine's
// goroutine mutates it; everyone else reads Snapshot copies.
type Order struct {
	ID         string       `json:"id"`
	Instrument string       `json:"instrument"`
	Owner      string       `json:"owner,omitempty"`
	Side       Side         `json:"side"`
	Type       OrderType    `json:"type"`
	TIF        TimeInForce  `json:"tif"`
	Qty        int64        `json:"qty"`
	Filled     int64        `json:"filled"`
	LimitPrice Price        `json:"limitPrice"`
	Status     Status       `json:"status"`
	Reason     CancelReason `json:"reason,omitempty"`

	Seq         uint64    `json:"seq"` // arrival order within the instrument
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	GoodTill    time.Time `json:"goodTill,omitzero"` // zero means no deadline

	level *PriceLevel
	prev  *Order
	next  *Order
}

func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Resting reports whether the order currently sits in a book.
func (o *Order) Resting() bool {
	return o.level != nil
}

// Fill applies an execution of qty lots.
func (o *Order) Fill(qty int64, at time.Time) error {
	if qty <= 0 || qty > o.Remaining() {
		return fmt.Errorf("order %s: fill of %d exceeds remaining %d", o.ID, qty, o.Remaining())
	}
	next, err := Next(o.Status, EventFill, o.Filled+qty == o.Qty)
	if err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.Filled += qty
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Close moves the order to cancelled or expired. ev must be EventCancel or EventExpire.
func (o *Order) Close(ev Event, reason CancelReason, at time.Time) error {
	if ev == EventFill {
		return fmt.Errorf("order %s: close with fill event", o.ID)
	}
	next, err := Next(o.Status, ev, false)
	if err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.Status = next
	o.Reason = reason
	o.UpdatedAt = at
	return nil
}

// Snapshot returns a detached copy safe to hand to other goroutines.
func (o *Order) Snapshot() Order {
	cp := *o
	cp.level, cp.prev, cp.next = nil, nil, nil
	return cp
}

// Next returns the following order in its price level (read-only traversal).
func (o *Order) Next() *Order {
	return o.next
}
