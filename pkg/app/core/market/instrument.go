package market

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInstrumentUnknown = errors.New("instrument unknown")
	ErrInstrumentHalted  = errors.New("instrument not accepting orders")
	ErrInvalidPrice      = errors.New("invalid price")
)

// Kind distinguishes tradeable items from equities.
type Kind int8

const (
	Item   Kind = iota // in-game item, keyed by item id
	Equity             // player company stock, keyed by ticker
)

func (k Kind) String() string {
	switch k {
	case Item:
		return "item"
	case Equity:
		return "equity"
	default:
		return "unknown"
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "item":
		return Item, nil
	case "equity", "stock":
		return Equity, nil
	default:
		return 0, fmt.Errorf("unknown instrument kind %q", s)
	}
}

// Status is the trading status of an instrument.
type Status int8

const (
	Active   Status = iota // accepting orders
	Halted                 // engine stopped, awaiting reconciliation
	Delisted               // removed from trading
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Halted:
		return "halted"
	case Delisted:
		return "delisted"
	default:
		return "unknown"
	}
}

// Instrument describes one tradeable instrument.
//
// Prices inside the engine are integer ticks; TickSize is the currency value
// of one tick (e.g. 0.01). Quantities are integer lots and must be multiples
// of LotSize.
type Instrument struct {
	ID       string
	Kind     Kind
	Name     string
	TickSize decimal.Decimal
	LotSize  int64
	MinQty   int64
	MaxQty   int64 // 0 means unbounded
	Status   Status
}

// NewInstrument creates an active instrument with validated parameters.
func NewInstrument(id string, kind Kind, tickSize decimal.Decimal, lotSize int64) (Instrument, error) {
	in := Instrument{
		ID:       id,
		Kind:     kind,
		Name:     id,
		TickSize: tickSize,
		LotSize:  lotSize,
		MinQty:   lotSize,
		Status:   Active,
	}
	if err := in.Validate(); err != nil {
		return Instrument{}, fmt.Errorf("invalid instrument %s: %w", id, err)
	}
	return in, nil
}

func (in Instrument) Validate() error {
	if in.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if strings.ContainsAny(in.ID, ": \t/") {
		return fmt.Errorf("id %q cannot contain ':', '/' or whitespace", in.ID)
	}
	if !in.TickSize.IsPositive() {
		return fmt.Errorf("tick size must be positive")
	}
	if in.LotSize <= 0 {
		return fmt.Errorf("lot size must be positive")
	}
	if in.MinQty < 0 || in.MaxQty < 0 {
		return fmt.Errorf("quantity bounds cannot be negative")
	}
	if in.MaxQty > 0 && in.MaxQty < in.MinQty {
		return fmt.Errorf("max quantity %d below min quantity %d", in.MaxQty, in.MinQty)
	}
	return nil
}

// ValidateQty checks qty against lot size and bounds.
func (in Instrument) ValidateQty(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if qty%in.LotSize != 0 {
		return fmt.Errorf("quantity %d is not a multiple of lot size %d", qty, in.LotSize)
	}
	if qty < in.MinQty {
		return fmt.Errorf("quantity %d below minimum %d", qty, in.MinQty)
	}
	if in.MaxQty > 0 && qty > in.MaxQty {
		return fmt.Errorf("quantity %d exceeds maximum %d", qty, in.MaxQty)
	}
	return nil
}

var maxTicks = decimal.NewFromInt(math.MaxInt64)

// PriceToTicks converts a decimal price string ("5.00") to ticks. The price
// must be positive and an exact multiple of the tick size.
func (in Instrument) PriceToTicks(price string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidPrice, d)
	}
	if !d.Mod(in.TickSize).IsZero() {
		return 0, fmt.Errorf("%w: %s is not a multiple of tick size %s", ErrInvalidPrice, d, in.TickSize)
	}
	q := d.Div(in.TickSize)
	if q.GreaterThan(maxTicks) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidPrice, d)
	}
	return q.IntPart(), nil
}

// TicksToPrice renders ticks as a decimal string with the tick size's precision.
func (in Instrument) TicksToPrice(ticks int64) string {
	places := -in.TickSize.Exponent()
	if places < 0 {
		places = 0
	}
	return decimal.NewFromInt(ticks).Mul(in.TickSize).StringFixed(places)
}
