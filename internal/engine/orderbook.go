// Package engine implements the matching engine: a single-instrument
// order book composing an order arena, two side books, an append-only
// trade log, and a simulated clock, under strict price-time priority.
package engine

import (
	"errors"

	"github.com/rs/zerolog/log"

	"bourse/internal/arena"
	"bourse/internal/book"
	"bourse/internal/common"
)

// Validation rejections. These are never fatal: the offending order or
// operation moves to Rejected (or becomes a no-op) and the engine
// continues, matching spec's two-tier error model.
var (
	ErrZeroVolume   = errors.New("engine: order volume must be > 0")
	ErrBadPrice     = errors.New("engine: price is not tick-aligned or out of range")
	ErrUnknownOrder = errors.New("engine: unknown order id")
	ErrNotActive    = errors.New("engine: order is not active")
	ErrTimeTravel   = errors.New("engine: new time precedes current time")
)

// OrderBook is a single-instrument limit order book: price-time-priority
// matching over two SideBooks, backed by an Arena of order records, with
// an append-only trade log and a simulated clock.
type OrderBook struct {
	arena  *arena.Arena
	bids   *book.SideBook
	asks   *book.SideBook
	trades []common.TradeRecord

	now      int64
	tickSize uint32
}

// New constructs an empty order book. tickSize must be >= 1; startTime is
// the initial value of the simulated clock, in nanoseconds.
func New(tickSize uint32, startTime int64) *OrderBook {
	if tickSize == 0 {
		tickSize = 1
	}
	return &OrderBook{
		arena:    arena.New(1024),
		bids:     book.NewBidBook(),
		asks:     book.NewAskBook(),
		now:      startTime,
		tickSize: tickSize,
	}
}

// Now returns the book's current simulated time.
func (b *OrderBook) Now() int64 { return b.now }

// TickSize returns the book's minimum price increment.
func (b *OrderBook) TickSize() uint32 { return b.tickSize }

func (b *OrderBook) tickAligned(price uint32) bool {
	return price%b.tickSize == 0
}

func (b *OrderBook) sideBook(side common.Side) *book.SideBook {
	if side == common.Bid {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) oppositeBook(side common.Side) *book.SideBook {
	return b.sideBook(side.Opposite())
}

func marketSentinel(side common.Side) uint32 {
	if side == common.Bid {
		return common.MaxPrice
	}
	return common.MinPrice
}

// reject marks an already-arena-allocated order Rejected without ever
// letting it touch a side book.
func (b *OrderBook) reject(id uint64) {
	b.arena.Mutate(id, func(o *common.Order) {
		o.Status = common.Rejected
		o.EndTime = b.now
	})
}

// PlaceOrder submits a new limit (price != nil) or market (price == nil)
// order. It always consumes a dense order ID, even on rejection, per the
// arena's monotonic-assignment invariant. Matching happens immediately;
// any unfilled limit residual rests at the tail of its price level.
func (b *OrderBook) PlaceOrder(side common.Side, vol uint32, traderID uint64, price *uint32) (uint64, error) {
	id := b.arena.Add(common.Order{Status: common.New})
	return id, b.ApplyReservedOrder(id, side, vol, traderID, price)
}

// ReserveOrderID allocates the next dense order ID without assigning any
// other field. Used by the step environment to pre-allocate an ID at
// staging time without otherwise touching the book (the reserved slot
// carries Status New and is invisible to every book query except
// GetOrders and OrderStatus, until ApplyReservedOrder fills it in).
func (b *OrderBook) ReserveOrderID() uint64 {
	return b.arena.Add(common.Order{Status: common.New})
}

// NextOrderID reports the ID that the next ReserveOrderID/PlaceOrder call
// will hand out, letting a wrapper keep its own counter in sync.
func (b *OrderBook) NextOrderID() uint64 {
	return uint64(b.arena.Len())
}

// ApplyReservedOrder fills in a previously reserved order ID's fields and
// runs it through validation and matching exactly as PlaceOrder does. id
// must have been produced by ReserveOrderID (or PlaceOrder, which calls
// this immediately after reserving).
func (b *OrderBook) ApplyReservedOrder(id uint64, side common.Side, vol uint32, traderID uint64, price *uint32) error {
	p := marketSentinel(side)
	if price != nil {
		p = *price
	}
	b.arena.Mutate(id, func(o *common.Order) {
		o.Side = side
		o.Price = p
		o.Vol = vol
		o.StartVol = vol
		o.TraderID = traderID
		o.ArrTime = b.now
	})

	if vol == 0 {
		b.reject(id)
		log.Warn().Uint64("orderID", id).Msg("rejected order: zero volume")
		return ErrZeroVolume
	}
	if price != nil && (!b.tickAligned(p) || p == 0 || p == common.MaxPrice) {
		b.reject(id)
		log.Warn().Uint64("orderID", id).Uint32("price", p).Msg("rejected order: bad price")
		return ErrBadPrice
	}

	b.arena.Mutate(id, func(o *common.Order) { o.Status = common.Active })
	b.match(id)

	rest, _ := b.arena.Get(id)
	if rest.Vol > 0 {
		if price == nil {
			// Market order residual is dropped rather than rested.
			b.arena.Mutate(id, func(o *common.Order) {
				o.Status = common.Filled
				o.EndTime = b.now
			})
		} else {
			b.sideBook(side).Insert(p, id, rest.Vol)
		}
	}
	return nil
}

// match runs the price-time-priority matching loop for order id against
// the opposite side, recording a TradeRecord for every fill. It mutates
// the arena in place and leaves id's final residual Vol for the caller
// (PlaceOrder or ModifyOrder) to decide what to do with.
func (b *OrderBook) match(id uint64) {
	order, ok := b.arena.Get(id)
	if !ok {
		return
	}
	opp := b.oppositeBook(order.Side)

	for {
		order, _ = b.arena.Get(id)
		if order.Vol == 0 {
			break
		}
		best := opp.BestMut()
		if best == nil {
			break
		}

		var crosses bool
		if order.Side == common.Bid {
			crosses = order.Price >= best.Price
		} else {
			crosses = order.Price <= best.Price
		}
		if !crosses {
			break
		}

		passiveID := best.OrderIDs[0]
		passive, _ := b.arena.Get(passiveID)
		tradeVol := min(order.Vol, passive.Vol)

		newIncoming := order.Vol - tradeVol
		newPassive := passive.Vol - tradeVol

		b.arena.Mutate(id, func(o *common.Order) { o.Vol = newIncoming })
		b.arena.Mutate(passiveID, func(o *common.Order) { o.Vol = newPassive })
		opp.Fill(best.Price, tradeVol)

		b.trades = append(b.trades, common.TradeRecord{
			Time:      b.now,
			Side:      passive.Side,
			Price:     passive.Price,
			Vol:       tradeVol,
			ActiveID:  id,
			PassiveID: passiveID,
		})

		if newPassive == 0 {
			opp.PopFront(best.Price)
			b.arena.Mutate(passiveID, func(o *common.Order) {
				o.Status = common.Filled
				o.EndTime = b.now
			})
		}
		if newIncoming == 0 {
			b.arena.Mutate(id, func(o *common.Order) {
				o.Status = common.Filled
				o.EndTime = b.now
			})
			break
		}
	}
}

// CancelOrder removes an Active order from its level and marks it
// Cancelled. A cancel of an order that is not Active is a no-op that
// reports ErrNotActive (or ErrUnknownOrder for an unrecognized id); the
// engine continues regardless.
func (b *OrderBook) CancelOrder(id uint64) error {
	order, ok := b.arena.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	if order.Status != common.Active {
		return ErrNotActive
	}

	b.sideBook(order.Side).RemoveOrder(order.Price, id, order.Vol)
	b.arena.Mutate(id, func(o *common.Order) {
		o.Status = common.Cancelled
		o.EndTime = b.now
	})
	return nil
}

// ModifyOrder applies a volume-only change in place (decrease preserves
// time priority, increase moves the order to the tail of its level), or
// a price change, which cancels and replaces the order at the new price
// and re-runs it through matching as if freshly placed. ArrTime is never
// altered by a modify.
func (b *OrderBook) ModifyOrder(id uint64, newPrice *uint32, newVol *uint32) error {
	order, ok := b.arena.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	if order.Status != common.Active {
		return ErrNotActive
	}
	if newVol != nil && *newVol == 0 {
		return ErrZeroVolume
	}

	if newPrice != nil {
		p := *newPrice
		if !b.tickAligned(p) || p == 0 || p == common.MaxPrice {
			return ErrBadPrice
		}

		vol := order.Vol
		if newVol != nil {
			vol = *newVol
		}

		b.sideBook(order.Side).RemoveOrder(order.Price, id, order.Vol)
		b.arena.Mutate(id, func(o *common.Order) {
			o.Price = p
			o.Vol = vol
			o.StartVol = vol
		})
		b.match(id)

		rest, _ := b.arena.Get(id)
		if rest.Vol > 0 {
			b.sideBook(order.Side).Insert(p, id, rest.Vol)
		}
		return nil
	}

	if newVol == nil {
		return nil
	}
	vol := *newVol
	switch {
	case vol == order.Vol:
		return nil
	case vol < order.Vol:
		delta := int64(vol) - int64(order.Vol)
		b.sideBook(order.Side).AdjustVolume(order.Price, delta)
		b.arena.Mutate(id, func(o *common.Order) { o.Vol = vol })
	default: // vol > order.Vol: loses time priority
		b.sideBook(order.Side).RemoveOrder(order.Price, id, order.Vol)
		b.arena.Mutate(id, func(o *common.Order) { o.Vol = vol })
		b.sideBook(order.Side).Insert(order.Price, id, vol)
	}
	return nil
}

// GetTrades returns the full trade log, in chronological order.
func (b *OrderBook) GetTrades() []common.TradeRecord {
	out := make([]common.TradeRecord, len(b.trades))
	copy(out, b.trades)
	return out
}

// GetOrders returns one record per order ID ever issued, in ID order.
func (b *OrderBook) GetOrders() []common.Order {
	return b.arena.All()
}

// OrderStatus returns the current status of an order.
func (b *OrderBook) OrderStatus(id uint64) (common.OrderStatus, error) {
	order, ok := b.arena.Get(id)
	if !ok {
		return 0, ErrUnknownOrder
	}
	return order.Status, nil
}

// BidAsk returns the best bid and ask prices; an empty side reports 0
// (bid) or MaxPrice (ask).
func (b *OrderBook) BidAsk() (bid, ask uint32) {
	if lvl := b.bids.BestMut(); lvl != nil {
		bid = lvl.Price
	}
	ask = common.MaxPrice
	if lvl := b.asks.BestMut(); lvl != nil {
		ask = lvl.Price
	}
	return bid, ask
}

// BidVol returns total resting volume on the bid side.
func (b *OrderBook) BidVol() uint64 { return b.bids.TotalVolume() }

// AskVol returns total resting volume on the ask side.
func (b *OrderBook) AskVol() uint64 { return b.asks.TotalVolume() }

// BestBidVol returns the volume resting at the best bid, or 0 if empty.
func (b *OrderBook) BestBidVol() uint64 {
	if lvl := b.bids.BestMut(); lvl != nil {
		return lvl.Volume
	}
	return 0
}

// BestAskVol returns the volume resting at the best ask, or 0 if empty.
func (b *OrderBook) BestAskVol() uint64 {
	if lvl := b.asks.BestMut(); lvl != nil {
		return lvl.Volume
	}
	return 0
}

// BestBidOrders/BestAskOrders return order-count at touch, used by the
// step environment's level-1/level-2 statistics.
func (b *OrderBook) BestBidOrders() uint32 {
	if lvl := b.bids.BestMut(); lvl != nil {
		return lvl.NOrders
	}
	return 0
}

func (b *OrderBook) BestAskOrders() uint32 {
	if lvl := b.asks.BestMut(); lvl != nil {
		return lvl.NOrders
	}
	return 0
}

// Bids/Asks expose the underlying side books read-only, for the step
// environment's level-2 top-10 aggregation.
func (b *OrderBook) Bids() *book.SideBook { return b.bids }
func (b *OrderBook) Asks() *book.SideBook { return b.asks }

// SetTime advances the simulated clock. t must be >= the current time.
func (b *OrderBook) SetTime(t int64) error {
	if t < b.now {
		return ErrTimeTravel
	}
	b.now = t
	return nil
}

// TradeCount returns the number of trades recorded so far.
func (b *OrderBook) TradeCount() int {
	return len(b.trades)
}

// TradeVolumeSince sums the Vol of every trade recorded from index start
// (inclusive) to the end of the log, e.g. to measure volume traded
// during a single simulation step.
func (b *OrderBook) TradeVolumeSince(start int) uint64 {
	var total uint64
	for _, t := range b.trades[start:] {
		total += uint64(t.Vol)
	}
	return total
}
