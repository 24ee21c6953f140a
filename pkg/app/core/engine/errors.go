package engine

import (
	"errors"

	"github.com/uhyunpark/tradepost/pkg/app/core/market"
)

var (
	// ErrInvalidOrder: malformed input, nothing was mutated.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderNotCancellable: the order is terminal (filled, cancelled or expired).
	ErrOrderNotCancellable = errors.New("order not cancellable")
	ErrOrderNotFound       = errors.New("order not found")
	// ErrEngineInvariantViolation is fatal; the instrument stays halted until reconciled.
	ErrEngineInvariantViolation = errors.New("engine invariant violation")
	ErrEngineStopped            = errors.New("engine stopped")

	ErrInstrumentUnknown = market.ErrInstrumentUnknown
	ErrInstrumentHalted  = market.ErrInstrumentHalted
)
