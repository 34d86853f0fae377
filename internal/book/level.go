// Package book implements the price-level FIFO and the per-side ordered
// map of price to level, the two data structures the matching engine
// composes into a full order book.
package book

// PriceLevel holds every order resting at a single price, in time
// priority (insertion order = FIFO).
type PriceLevel struct {
	Price    uint32
	OrderIDs []uint64
	Volume   uint64
	NOrders  uint32
}

// newLevel creates a level holding a single order.
func newLevel(price uint32, orderID uint64, vol uint32) *PriceLevel {
	return &PriceLevel{
		Price:    price,
		OrderIDs: []uint64{orderID},
		Volume:   uint64(vol),
		NOrders:  1,
	}
}

// append adds an order to the tail of the level (no time-priority claim
// over what's already resting).
func (l *PriceLevel) append(orderID uint64, vol uint32) {
	l.OrderIDs = append(l.OrderIDs, orderID)
	l.Volume += uint64(vol)
	l.NOrders++
}

// front returns the oldest order ID in the level (time-priority head).
func (l *PriceLevel) front() uint64 {
	return l.OrderIDs[0]
}

// empty reports whether the level has no resting orders.
func (l *PriceLevel) empty() bool {
	return len(l.OrderIDs) == 0
}

// fill reduces the level's aggregate volume by vol, without touching
// order membership. Used mid-match, whether the head order is partially
// or fully consumed.
func (l *PriceLevel) fill(vol uint32) {
	l.Volume -= uint64(vol)
}

// popFront drops the head order once the match loop has reduced its
// volume to zero. Aggregate volume must already reflect the fill via a
// prior call to fill.
func (l *PriceLevel) popFront() {
	l.OrderIDs = l.OrderIDs[1:]
	l.NOrders--
}

// removeID removes an arbitrary order (cancel, or modify's cancel-
// and-replace) whose volume immediately before removal was vol. Returns
// false if the ID was not found.
func (l *PriceLevel) removeID(orderID uint64, vol uint32) bool {
	for i, id := range l.OrderIDs {
		if id != orderID {
			continue
		}
		l.OrderIDs = append(l.OrderIDs[:i], l.OrderIDs[i+1:]...)
		l.Volume -= uint64(vol)
		l.NOrders--
		return true
	}
	return false
}

// adjustVolume changes the aggregate volume tracked for the level by
// delta (positive or negative) without touching order membership; used
// for in-place volume-only modifies.
func (l *PriceLevel) adjustVolume(delta int64) {
	l.Volume = uint64(int64(l.Volume) + delta)
}
