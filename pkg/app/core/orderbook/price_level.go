package orderbook

// PriceLevel is a FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price int64
	Side  Side

	head *Order
	tail *Order

	TotalQty   int64 // sum of Remaining() over members
	OrderCount int
}

func newPriceLevel(side Side, price int64) *PriceLevel {
	return &PriceLevel{Price: price, Side: side}
}

func (p *PriceLevel) enqueue(o *Order) {
	o.level = p
	o.next = nil
	o.prev = p.tail
	if p.tail == nil {
		p.head = o
	} else {
		p.tail.next = o
	}
	p.tail = o
	p.TotalQty += o.Remaining()
	p.OrderCount++
}

// unlink removes o from anywhere in the queue in O(1).
func (p *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	p.TotalQty -= o.Remaining()
	p.OrderCount--
	o.level, o.prev, o.next = nil, nil, nil
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Head is the oldest order at this price.
func (p *PriceLevel) Head() *Order {
	return p.head
}

// Orders returns the members in queue order.
func (p *PriceLevel) Orders() []*Order {
	out := make([]*Order, 0, p.OrderCount)
	for o := p.head; o != nil; o = o.next {
		out = append(out, o)
	}
	return out
}

// recount sums the members directly; used by the consistency check.
func (p *PriceLevel) recount() (qty int64, n int) {
	for o := p.head; o != nil; o = o.next {
		qty += o.Remaining()
		n++
	}
	return qty, n
}
