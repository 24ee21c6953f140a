package market

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is the thread-safe set of tradeable instruments.
type Catalog struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
}

func NewCatalog() *Catalog {
	return &Catalog{
		instruments: make(map[string]*Instrument),
	}
}

// Register adds an instrument. Ids are unique.
func (c *Catalog) Register(in Instrument) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", in.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.instruments[in.ID]; exists {
		return fmt.Errorf("instrument %s already registered", in.ID)
	}
	cp := in
	c.instruments[in.ID] = &cp
	return nil
}

// Get returns a copy of the instrument.
func (c *Catalog) Get(id string) (Instrument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	in, ok := c.instruments[id]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrInstrumentUnknown, id)
	}
	return *in, nil
}

// Tradeable returns the instrument if it exists and is Active.
func (c *Catalog) Tradeable(id string) (Instrument, error) {
	in, err := c.Get(id)
	if err != nil {
		return Instrument{}, err
	}
	if in.Status != Active {
		return Instrument{}, fmt.Errorf("%w: %s is %s", ErrInstrumentHalted, id, in.Status)
	}
	return in, nil
}

// List returns all instruments sorted by id.
func (c *Catalog) List() []Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Instrument, 0, len(c.instruments))
	for _, in := range c.instruments {
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus changes the trading status of an instrument.
func (c *Catalog) SetStatus(id string, status Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.instruments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstrumentUnknown, id)
	}
	if err := validateStatusTransition(in.Status, status); err != nil {
		return fmt.Errorf("instrument %s: %w", id, err)
	}
	in.Status = status
	return nil
}

// Active → Halted: engine invariant violation or operator halt
// Halted → Active: after reconciliation
// Active/Halted → Delisted: allowed
// Delisted → *: terminal
func validateStatusTransition(from, to Status) error {
	if from == Delisted && to != Delisted {
		return fmt.Errorf("cannot change status from %s (terminal state)", from)
	}
	switch to {
	case Active, Halted, Delisted:
		return nil
	default:
		return fmt.Errorf("unknown status %d", to)
	}
}

func (c *Catalog) Exists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.instruments[id]
	return ok
}

func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instruments)
}
