package orderbook

import (
	"errors"
	"fmt"
)

type Status int8

const (
	Pending Status = iota
	PartiallyFilled
	Filled
	Cancelled
	Expired
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Expired
}

// Open reports whether the order may still fill or be cancelled.
func (s Status) Open() bool {
	return s == Pending || s == PartiallyFilled
}

type Event int8

const (
	EventFill Event = iota
	EventCancel
	EventExpire
)

func (e Event) String() string {
	switch e {
	case EventFill:
		return "fill"
	case EventCancel:
		return "cancel"
	case EventExpire:
		return "expire"
	default:
		return "unknown"
	}
}

var ErrTerminalStatus = errors.New("order is in a terminal state")

// Next is the order state machine. complete tells a fill event whether it
// exhausts the order's quantity.
func Next(s Status, ev Event, complete bool) (Status, error) {
	switch s {
	case Pending, PartiallyFilled:
		switch ev {
		case EventFill:
			if complete {
				return Filled, nil
			}
			return PartiallyFilled, nil
		case EventCancel:
			return Cancelled, nil
		case EventExpire:
			return Expired, nil
		default:
			return s, fmt.Errorf("unknown event %d", ev)
		}
	case Filled, Cancelled, Expired:
		return s, fmt.Errorf("%w: %s on %s", ErrTerminalStatus, ev, s)
	default:
		return s, fmt.Errorf("unknown status %d", s)
	}
}

// Closure is the terminal flag an order carries besides its quantities.
type Closure int8

const (
	NotClosed Closure = iota
	ClosedCancelled
	ClosedExpired
)

// StatusOf derives the status implied by quantities and closure.
// A full fill wins over any closure.
func StatusOf(filled, qty int64, c Closure) Status {
	switch {
	case filled == qty:
		return Filled
	case c == ClosedCancelled:
		return Cancelled
	case c == ClosedExpired:
		return Expired
	case filled > 0:
		return PartiallyFilled
	default:
		return Pending
	}
}

// ClosureOf extracts the terminal flag from a status.
func ClosureOf(s Status) Closure {
	switch s {
	case Cancelled:
		return ClosedCancelled
	case Expired:
		return ClosedExpired
	default:
		return NotClosed
	}
}

// Consistent reports whether o's status matches its quantities.
func (o *Order) Consistent() bool {
	if o.Filled < 0 || o.Filled > o.Qty {
		return false
	}
	return o.Status == StatusOf(o.Filled, o.Qty, ClosureOf(o.Status))
}
