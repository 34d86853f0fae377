package book

import (
	"github.com/tidwall/btree"

	"bourse/internal/common"
)

// Side mirrors common.Side; kept as an alias so callers of this package
// don't need a second import for the type.
type Side = common.Side

// SideBook is the ordered price -> PriceLevel map for one side of an
// order book. Bids are iterated best-first (highest price first); asks
// best-first (lowest price first). Backed by a tidwall/btree generic
// B-tree for O(log n) insert/remove/best-price access.
type SideBook struct {
	side Side
	tree *btree.BTreeG[*PriceLevel]
}

// NewBidBook returns an empty side book ordered best-bid-first
// (descending by price).
func NewBidBook() *SideBook {
	return &SideBook{
		side: common.Bid,
		tree: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price > b.Price
		}),
	}
}

// NewAskBook returns an empty side book ordered best-ask-first
// (ascending by price).
func NewAskBook() *SideBook {
	return &SideBook{
		side: common.Ask,
		tree: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price < b.Price
		}),
	}
}

// Side reports which side of the book this is.
func (s *SideBook) Side() Side { return s.side }

// BestMut returns a mutable handle to the best level, or nil if empty.
func (s *SideBook) BestMut() *PriceLevel {
	lvl, ok := s.tree.MinMut()
	if !ok {
		return nil
	}
	return lvl
}

// At returns the level resting at price, or nil if there is none.
func (s *SideBook) At(price uint32) *PriceLevel {
	lvl, ok := s.tree.Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return lvl
}

// AtMut returns a mutable handle to the level resting at price, or nil.
func (s *SideBook) AtMut(price uint32) *PriceLevel {
	lvl, ok := s.tree.GetMut(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return lvl
}

// Insert adds orderID with volume vol to the tail of the level at
// price, creating the level if it does not already exist.
func (s *SideBook) Insert(price uint32, orderID uint64, vol uint32) {
	if lvl := s.AtMut(price); lvl != nil {
		lvl.append(orderID, vol)
		return
	}
	s.tree.Set(newLevel(price, orderID, vol))
}

// Fill reduces the aggregate volume at price by vol mid-match, without
// touching order membership.
func (s *SideBook) Fill(price uint32, vol uint32) {
	if lvl := s.AtMut(price); lvl != nil {
		lvl.fill(vol)
	}
}

// PopFront removes the time-priority head of the level at price (whose
// fill has already been subtracted from the level's volume by Fill) and
// deletes the level from the tree if it is now empty.
func (s *SideBook) PopFront(price uint32) {
	lvl := s.AtMut(price)
	if lvl == nil {
		return
	}
	lvl.popFront()
	if lvl.empty() {
		s.tree.Delete(&PriceLevel{Price: price})
	}
}

// RemoveOrder removes a specific order (whose volume immediately before
// removal was vol) from the level at price, deleting the level if it
// becomes empty. Returns false if the order was not found at that price.
func (s *SideBook) RemoveOrder(price uint32, orderID uint64, vol uint32) bool {
	lvl := s.AtMut(price)
	if lvl == nil {
		return false
	}
	if !lvl.removeID(orderID, vol) {
		return false
	}
	if lvl.empty() {
		s.tree.Delete(&PriceLevel{Price: price})
	}
	return true
}

// AdjustVolume changes the aggregate volume at price by delta without
// touching membership (used by in-place volume-only decreases).
func (s *SideBook) AdjustVolume(price uint32, delta int64) {
	if lvl := s.AtMut(price); lvl != nil {
		lvl.adjustVolume(delta)
	}
}

// Len returns the number of distinct price levels resting on this side.
func (s *SideBook) Len() int {
	return s.tree.Len()
}

// Items returns every level on this side, best-first. Callers must not
// mutate the returned PriceLevel values except through SideBook's own
// methods, since they are tree-owned.
func (s *SideBook) Items() []*PriceLevel {
	return s.tree.Items()
}

// TotalVolume sums Volume across every level on this side.
func (s *SideBook) TotalVolume() uint64 {
	var total uint64
	s.tree.Scan(func(lvl *PriceLevel) bool {
		total += lvl.Volume
		return true
	})
	return total
}

// TopN returns up to n levels, best-first, nil-padded if fewer than n
// levels are resting.
func (s *SideBook) TopN(n int) []*PriceLevel {
	out := make([]*PriceLevel, n)
	i := 0
	s.tree.Scan(func(lvl *PriceLevel) bool {
		if i >= n {
			return false
		}
		out[i] = lvl
		i++
		return true
	})
	return out
}
