// Package stepenv implements the step-based simulation environment: a
// wrapper around an engine.OrderBook that buffers instructions staged by
// external agents, shuffles and applies them under a deterministic RNG
// on each Step, advances the simulated clock, and records a time series
// of market statistics.
package stepenv

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bourse/internal/common"
	"bourse/internal/engine"
	"bourse/internal/rng"
)

type instrKind uint8

const (
	kindPlace instrKind = iota
	kindCancel
	kindModify
)

// instruction is one staged, not-yet-applied mutation.
type instruction struct {
	kind instrKind

	id       uint64 // place: pre-allocated ID. cancel/modify: target ID.
	side     common.Side
	vol      uint32
	traderID uint64
	price    *uint32

	newPrice *uint32
	newVol   *uint32
}

// stats is the per-step time series recorded after every Step call.
type stats struct {
	bidPrice       []uint32
	askPrice       []uint32
	bidVol         []uint64
	askVol         []uint64
	bidTouchVol    []uint64
	askTouchVol    []uint64
	bidTouchOrders []uint32
	askTouchOrders []uint32
	tradeVol       []uint64

	bidVolN    [][10]uint64
	bidOrdersN [][10]uint32
	askVolN    [][10]uint64
	askOrdersN [][10]uint32
}

// StepEnv is a deterministic, single-threaded step simulation wrapped
// around one engine.OrderBook. Construction parameters are seed,
// start_time, tick_size, and step_size.
type StepEnv struct {
	book     *engine.OrderBook
	rng      *rng.SplitMix64
	stepSize int64
	staged   []instruction
	stats    stats
	runID    string
}

// New constructs a StepEnv. seed drives the deterministic per-step
// permutation; startTime and tickSize seed the underlying order book;
// stepSize is the number of simulated nanoseconds advanced per Step.
func New(seed uint64, startTime int64, tickSize uint32, stepSize int64) *StepEnv {
	return &StepEnv{
		book:     engine.New(tickSize, startTime),
		rng:      rng.NewSplitMix64(seed),
		stepSize: stepSize,
		runID:    uuid.New().String(),
	}
}

// RunID is a unique per-construction identifier, carried for downstream
// export/bookkeeping (out of scope for this package).
func (e *StepEnv) RunID() string { return e.runID }

// Book exposes the underlying order book for read-only queries. Mutating
// methods on the returned book bypass staging and must not be called by
// agents; only PlaceOrder/CancelOrder/ModifyOrder/Step on StepEnv itself
// preserve the deterministic-step contract.
func (e *StepEnv) Book() *engine.OrderBook { return e.book }

// PlaceOrder stages a new limit (price != nil) or market (price == nil)
// order. It does not mutate the book; it immediately pre-allocates and
// returns the dense order ID the order will carry once applied.
func (e *StepEnv) PlaceOrder(side common.Side, vol uint32, traderID uint64, price *uint32) uint64 {
	id := e.book.ReserveOrderID()
	e.staged = append(e.staged, instruction{
		kind: kindPlace, id: id, side: side, vol: vol, traderID: traderID, price: price,
	})
	return id
}

// CancelOrder stages a cancellation. Unknown or already-inactive IDs
// become no-ops at apply time, not staging-time errors.
func (e *StepEnv) CancelOrder(id uint64) {
	e.staged = append(e.staged, instruction{kind: kindCancel, id: id})
}

// ModifyOrder stages a modification: a volume change, a price change, or
// both. See engine.OrderBook.ModifyOrder for the applied semantics.
func (e *StepEnv) ModifyOrder(id uint64, newPrice, newVol *uint32) {
	e.staged = append(e.staged, instruction{kind: kindModify, id: id, newPrice: newPrice, newVol: newVol})
}

// Pending returns the number of instructions staged since the last Step.
func (e *StepEnv) Pending() int { return len(e.staged) }

// Step draws a Fisher-Yates permutation of the staged instructions from
// the env's RNG, applies them in that order, clears the staged buffer,
// advances the clock by stepSize, and records one sample of every
// tracked statistic from the post-application book state.
func (e *StepEnv) Step() {
	order := make([]int, len(e.staged))
	for i := range order {
		order[i] = i
	}
	e.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	tradesBefore := e.book.TradeCount()
	for _, idx := range order {
		e.apply(e.staged[idx])
	}
	tradeVol := e.book.TradeVolumeSince(tradesBefore)

	e.staged = e.staged[:0]
	if err := e.book.SetTime(e.book.Now() + e.stepSize); err != nil {
		log.Error().Err(err).Msg("stepenv: failed to advance clock")
	}
	e.record(tradeVol)
}

func (e *StepEnv) apply(instr instruction) {
	switch instr.kind {
	case kindPlace:
		if err := e.book.ApplyReservedOrder(instr.id, instr.side, instr.vol, instr.traderID, instr.price); err != nil {
			log.Debug().Err(err).Uint64("orderID", instr.id).Msg("stepenv: staged placement rejected")
		}
	case kindCancel:
		if err := e.book.CancelOrder(instr.id); err != nil {
			log.Debug().Err(err).Uint64("orderID", instr.id).Msg("stepenv: staged cancel is a no-op")
		}
	case kindModify:
		if err := e.book.ModifyOrder(instr.id, instr.newPrice, instr.newVol); err != nil {
			log.Debug().Err(err).Uint64("orderID", instr.id).Msg("stepenv: staged modify rejected")
		}
	}
}

func (e *StepEnv) record(tradeVol uint64) {
	bid, ask := e.book.BidAsk()
	e.stats.bidPrice = append(e.stats.bidPrice, bid)
	e.stats.askPrice = append(e.stats.askPrice, ask)
	e.stats.bidVol = append(e.stats.bidVol, e.book.BidVol())
	e.stats.askVol = append(e.stats.askVol, e.book.AskVol())
	e.stats.bidTouchVol = append(e.stats.bidTouchVol, e.book.BestBidVol())
	e.stats.askTouchVol = append(e.stats.askTouchVol, e.book.BestAskVol())
	e.stats.bidTouchOrders = append(e.stats.bidTouchOrders, e.book.BestBidOrders())
	e.stats.askTouchOrders = append(e.stats.askTouchOrders, e.book.BestAskOrders())
	e.stats.tradeVol = append(e.stats.tradeVol, tradeVol)

	var bidVolN [10]uint64
	var bidOrdersN [10]uint32
	for i, lvl := range e.book.Bids().TopN(10) {
		if lvl != nil {
			bidVolN[i], bidOrdersN[i] = lvl.Volume, lvl.NOrders
		}
	}
	var askVolN [10]uint64
	var askOrdersN [10]uint32
	for i, lvl := range e.book.Asks().TopN(10) {
		if lvl != nil {
			askVolN[i], askOrdersN[i] = lvl.Volume, lvl.NOrders
		}
	}
	e.stats.bidVolN = append(e.stats.bidVolN, bidVolN)
	e.stats.bidOrdersN = append(e.stats.bidOrdersN, bidOrdersN)
	e.stats.askVolN = append(e.stats.askVolN, askVolN)
	e.stats.askOrdersN = append(e.stats.askOrdersN, askOrdersN)
}

// GetMarketData returns the full per-step time series collected so far,
// keyed by bid/ask price, bid/ask volume, and trade volume.
func (e *StepEnv) GetMarketData() map[string]any {
	return map[string]any{
		"bid_price": append([]uint32(nil), e.stats.bidPrice...),
		"ask_price": append([]uint32(nil), e.stats.askPrice...),
		"bid_vol":   append([]uint64(nil), e.stats.bidVol...),
		"ask_vol":   append([]uint64(nil), e.stats.askVol...),
		"trade_vol": append([]uint64(nil), e.stats.tradeVol...),
	}
}

// GetTrades returns the order book's full chronological trade log.
func (e *StepEnv) GetTrades() []common.TradeRecord { return e.book.GetTrades() }

// GetOrders returns one record per order ID ever issued.
func (e *StepEnv) GetOrders() []common.Order { return e.book.GetOrders() }

// BidAsk, BidVol, AskVol, BestBidVol, BestAskVol, and OrderStatus mirror
// the underlying book's read accessors.
func (e *StepEnv) BidAsk() (bid, ask uint32) { return e.book.BidAsk() }
func (e *StepEnv) BidVol() uint64            { return e.book.BidVol() }
func (e *StepEnv) AskVol() uint64            { return e.book.AskVol() }
func (e *StepEnv) BestBidVol() uint64        { return e.book.BestBidVol() }
func (e *StepEnv) BestAskVol() uint64        { return e.book.BestAskVol() }
func (e *StepEnv) OrderStatus(id uint64) (common.OrderStatus, error) {
	return e.book.OrderStatus(id)
}

// LogBook emits a snapshot of the current book state at info level:
// best bid/ask price and volume, pending instruction count, and the
// simulated clock.
func (e *StepEnv) LogBook() {
	bid, ask := e.book.BidAsk()
	log.Info().
		Str("runID", e.runID).
		Uint32("bidPrice", bid).
		Uint32("askPrice", ask).
		Uint64("bidVol", e.book.BidVol()).
		Uint64("askVol", e.book.AskVol()).
		Int("staged", len(e.staged)).
		Int64("now", e.book.Now()).
		Msg("stepenv: book snapshot")
}
