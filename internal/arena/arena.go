// Package arena owns every order record issued by a book, indexed
// densely by OrderID. Records are appended and never moved or freed: a
// PriceLevel references an order only by ID, never by pointer, so the
// arena can grow (and its backing array can be reallocated) without
// invalidating anything that holds an ID.
package arena

import "bourse/internal/common"

// Arena is a dense, append-only store of order records.
type Arena struct {
	orders []common.Order
}

// New returns an empty arena with room for capacity orders before its
// first reallocation.
func New(capacity int) *Arena {
	return &Arena{orders: make([]common.Order, 0, capacity)}
}

// Add appends a new order record and returns its dense, stable OrderID.
// The caller is expected to have already set every field except OrderID.
func (a *Arena) Add(order common.Order) uint64 {
	id := uint64(len(a.orders))
	order.OrderID = id
	a.orders = append(a.orders, order)
	return id
}

// Get returns a copy of the order record, and whether id is in range.
func (a *Arena) Get(id uint64) (common.Order, bool) {
	if id >= uint64(len(a.orders)) {
		return common.Order{}, false
	}
	return a.orders[id], true
}

// Mutate applies fn to the stored order in place. Returns false if id is
// out of range, in which case fn is not called.
func (a *Arena) Mutate(id uint64, fn func(*common.Order)) bool {
	if id >= uint64(len(a.orders)) {
		return false
	}
	fn(&a.orders[id])
	return true
}

// Len returns the number of orders ever issued (the next ID to be
// assigned).
func (a *Arena) Len() int {
	return len(a.orders)
}

// All returns every order record ever issued, in ID order. The returned
// slice is a copy; callers may not mutate the arena through it.
func (a *Arena) All() []common.Order {
	out := make([]common.Order, len(a.orders))
	copy(out, a.orders)
	return out
}
