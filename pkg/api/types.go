package api

import (
	"time"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/market"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

// API request/response types for REST endpoints and WebSocket messages.
// Prices cross the API as decimal strings and are converted to ticks with the
// instrument's tick size.

// ==============================
// REST Types
// ==============================

type InstrumentInfo struct {
	ID       string `json:"id"`       // e.g. "IRON_SWORD" or "GUILD"
	Kind     string `json:"kind"`     // "item" or "equity"
	Name     string `json:"name"`
	Status   string `json:"status"`   // "active", "halted", "delisted"
	TickSize string `json:"tickSize"` // e.g. "0.01"
	LotSize  int64  `json:"lotSize"`
	MinQty   int64  `json:"minQty"`
	MaxQty   int64  `json:"maxQty,omitempty"` // 0 = unbounded
}

type SubmitOrderRequest struct {
	ID          string     `json:"id,omitempty"` // assigned by the server if empty
	Instrument  string     `json:"instrument"`
	Owner       string     `json:"owner,omitempty"`
	Side        string     `json:"side"`                  // "buy" or "sell"
	Type        string     `json:"type,omitempty"`        // "limit" (default) or "market"
	TimeInForce string     `json:"timeInForce,omitempty"` // "GTC" (default), "IOC", "FOK"
	Qty         int64      `json:"qty"`
	Price       string     `json:"price,omitempty"` // required for limit orders
	GoodTill    *time.Time `json:"goodTill,omitempty"`
}

type OrderInfo struct {
	ID          string     `json:"id"`
	Instrument  string     `json:"instrument"`
	Owner       string     `json:"owner,omitempty"`
	Side        string     `json:"side"`
	Type        string     `json:"type"`
	TimeInForce string     `json:"timeInForce"`
	Price       string     `json:"price,omitempty"`
	Qty         int64      `json:"qty"`
	Filled      int64      `json:"filled"`
	Remaining   int64      `json:"remaining"`
	Status      string     `json:"status"` // "pending", "partially_filled", "filled", "cancelled", "expired"
	Reason      string     `json:"reason,omitempty"`
	Seq         uint64     `json:"seq"`
	SubmittedAt time.Time  `json:"submittedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	GoodTill    *time.Time `json:"goodTill,omitempty"`
}

type FillInfo struct {
	ID           string    `json:"id"`
	Seq          uint64    `json:"seq"`
	Instrument   string    `json:"instrument"`
	TakerOrderID string    `json:"takerOrderId"`
	MakerOrderID string    `json:"makerOrderId"`
	TakerSide    string    `json:"takerSide"`
	Price        string    `json:"price"`
	Qty          int64     `json:"qty"`
	Timestamp    time.Time `json:"timestamp"`
}

type SubmitOrderResponse struct {
	Order OrderInfo  `json:"order"`
	Fills []FillInfo `json:"fills"`
}

type PriceLevel struct {
	Price  string `json:"price"`
	Qty    int64  `json:"qty"`
	Orders int    `json:"orders"`
}

// BookSnapshot is the aggregated book; bids high to low, asks low to high.
type BookSnapshot struct {
	Instrument string       `json:"instrument"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Timestamp  int64        `json:"timestamp"` // Unix milliseconds
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest: {"op":"subscribe","channels":["fills:GUILD","orders:GUILD"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type WSMessage struct {
	Type    string `json:"type"` // "fill" or "order"
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// ==============================
// Conversions
// ==============================

func instrumentInfo(in market.Instrument) InstrumentInfo {
	return InstrumentInfo{
		ID:       in.ID,
		Kind:     in.Kind.String(),
		Name:     in.Name,
		Status:   in.Status.String(),
		TickSize: in.TickSize.String(),
		LotSize:  in.LotSize,
		MinQty:   in.MinQty,
		MaxQty:   in.MaxQty,
	}
}

func orderInfo(in market.Instrument, o orderbook.Order) OrderInfo {
	info := OrderInfo{
		ID:          o.ID,
		Instrument:  o.Instrument,
		Owner:       o.Owner,
		Side:        o.Side.String(),
		Type:        o.Type.String(),
		TimeInForce: o.TIF.String(),
		Qty:         o.Qty,
		Filled:      o.Filled,
		Remaining:   o.Remaining(),
		Status:      o.Status.String(),
		Seq:         o.Seq,
		SubmittedAt: o.SubmittedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if o.Reason != orderbook.ReasonNone {
		info.Reason = o.Reason.String()
	}
	if o.LimitPrice.Set {
		info.Price = in.TicksToPrice(o.LimitPrice.Ticks)
	}
	if !o.GoodTill.IsZero() {
		gt := o.GoodTill
		info.GoodTill = &gt
	}
	return info
}

func fillInfo(in market.Instrument, f engine.Fill) FillInfo {
	return FillInfo{
		ID:           f.ID,
		Seq:          f.Seq,
		Instrument:   f.Instrument,
		TakerOrderID: f.TakerOrderID,
		MakerOrderID: f.MakerOrderID,
		TakerSide:    f.TakerSide.String(),
		Price:        in.TicksToPrice(f.Price),
		Qty:          f.Qty,
		Timestamp:    f.Timestamp,
	}
}

func fillInfos(in market.Instrument, fills []engine.Fill) []FillInfo {
	out := make([]FillInfo, 0, len(fills))
	for _, f := range fills {
		out = append(out, fillInfo(in, f))
	}
	return out
}

func priceLevels(in market.Instrument, levels []orderbook.LevelView) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, PriceLevel{Price: in.TicksToPrice(l.Price), Qty: l.Qty, Orders: l.Orders})
	}
	return out
}
