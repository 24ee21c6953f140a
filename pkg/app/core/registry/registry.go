// Package registry indexes orders by id for one instrument.
//
// The owning engine goroutine holds the live, mutable orders and is the only
// writer. After each matching pass it publishes value snapshots with Commit;
// readers on any goroutine see those snapshots through Get and List, so a
// read never observes an order halfway through a pass.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
)

var ErrDuplicateID = errors.New("order id already registered")

type Registry struct {
	live map[string]*orderbook.Order // engine goroutine only

	mu   sync.RWMutex
	snap map[string]orderbook.Order
}

func New() *Registry {
	return &Registry{
		live: make(map[string]*orderbook.Order),
		snap: make(map[string]orderbook.Order),
	}
}

// Register adds a new order and publishes its first snapshot.
func (r *Registry) Register(o *orderbook.Order) error {
	if _, ok := r.live[o.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, o.ID)
	}
	r.live[o.ID] = o
	r.Commit(o)
	return nil
}

// Live returns the mutable order. Engine goroutine only.
func (r *Registry) Live(id string) (*orderbook.Order, bool) {
	o, ok := r.live[id]
	return o, ok
}

// Contains reports whether id is known. Engine goroutine only.
func (r *Registry) Contains(id string) bool {
	_, ok := r.live[id]
	return ok
}

// Commit publishes snapshots of the given orders.
func (r *Registry) Commit(orders ...*orderbook.Order) {
	if len(orders) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range orders {
		r.snap[o.ID] = o.Snapshot()
	}
}

// Get returns the last committed snapshot of an order.
func (r *Registry) Get(id string) (orderbook.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.snap[id]
	return o, ok
}

// List returns committed snapshots accepted by keep (all if nil), in arrival order.
func (r *Registry) List(keep func(orderbook.Order) bool) []orderbook.Order {
	r.mu.RLock()
	out := make([]orderbook.Order, 0, len(r.snap))
	for _, o := range r.snap {
		if keep == nil || keep(o) {
			out = append(out, o)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snap)
}
