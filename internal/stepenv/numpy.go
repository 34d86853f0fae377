package stepenv

import (
	"errors"
	"fmt"

	"bourse/internal/common"
)

// Batch instruction kinds, for the kind array of a six-array batch
// submission.
const (
	BatchNoOp     uint8 = 0
	BatchNewLimit uint8 = 1
	BatchCancel   uint8 = 2
)

var (
	// ErrBatchMismatchedLengths is returned when a batch's parallel
	// arrays are not all the same length.
	ErrBatchMismatchedLengths = errors.New("stepenv: batch arrays have mismatched lengths")
	// ErrBatchInvalidRow wraps a specific row's validation failure; the
	// whole batch is rejected and nothing is staged.
	ErrBatchInvalidRow = errors.New("stepenv: batch row failed validation")
)

// StepEnvNumpy is the level-2 variant of StepEnv: it additionally
// exposes flat uint32/uint64 batch arrays for level-1/level-2 market
// data, and the six-array batch instruction submission calls.
type StepEnvNumpy struct {
	*StepEnv
}

// NewNumpy constructs a level-2 StepEnv.
func NewNumpy(seed uint64, startTime int64, tickSize uint32, stepSize int64) *StepEnvNumpy {
	return &StepEnvNumpy{StepEnv: New(seed, startTime, tickSize, stepSize)}
}

// SubmitLimitOrders validates every row of a batch of new limit orders
// (tick-aligned, non-zero volume) before staging any of them. On any
// validation failure nothing is staged and the whole batch fails.
func (e *StepEnvNumpy) SubmitLimitOrders(sides []bool, vols, traderIDs, prices []uint32) ([]uint64, error) {
	n := len(sides)
	if len(vols) != n || len(traderIDs) != n || len(prices) != n {
		return nil, ErrBatchMismatchedLengths
	}
	tick := e.Book().TickSize()
	for i := 0; i < n; i++ {
		if err := validateRow(vols[i], prices[i], tick); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBatchInvalidRow, i, err)
		}
	}

	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		side := common.Ask
		if sides[i] {
			side = common.Bid
		}
		price := prices[i]
		ids[i] = e.PlaceOrder(side, vols[i], uint64(traderIDs[i]), &price)
	}
	return ids, nil
}

// SubmitCancellations stages N cancellations; unknown or inactive IDs
// become no-ops at apply time, not submission-time failures.
func (e *StepEnvNumpy) SubmitCancellations(ids []uint64) []uint64 {
	for _, id := range ids {
		e.CancelOrder(id)
	}
	return ids
}

// SubmitBatch stages an instruction block given as six parallel arrays
// (kind/side/vol/trader_id/price/order_id), one row per instruction.
// Rows of kind BatchNewLimit are validated (tick
// alignment, non-zero volume) before anything is staged; a single bad
// row fails the whole batch. Returns one ID per row: the pre-allocated
// ID for a new-limit row, 0 for a no-op or cancel row.
func (e *StepEnvNumpy) SubmitBatch(kind []uint8, side []bool, vol, traderID, price []uint32, orderID []uint64) ([]uint64, error) {
	n := len(kind)
	if len(side) != n || len(vol) != n || len(traderID) != n || len(price) != n || len(orderID) != n {
		return nil, ErrBatchMismatchedLengths
	}
	tick := e.Book().TickSize()
	for i := 0; i < n; i++ {
		switch kind[i] {
		case BatchNoOp, BatchCancel:
			// no per-row validation
		case BatchNewLimit:
			if err := validateRow(vol[i], price[i], tick); err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", ErrBatchInvalidRow, i, err)
			}
		default:
			return nil, fmt.Errorf("%w: row %d: unknown kind %d", ErrBatchInvalidRow, i, kind[i])
		}
	}

	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		switch kind[i] {
		case BatchNewLimit:
			s := common.Ask
			if side[i] {
				s = common.Bid
			}
			p := price[i]
			ids[i] = e.PlaceOrder(s, vol[i], uint64(traderID[i]), &p)
		case BatchCancel:
			e.CancelOrder(orderID[i])
		}
	}
	return ids, nil
}

func validateRow(vol, price, tick uint32) error {
	if vol == 0 {
		return errors.New("zero volume")
	}
	if price%tick != 0 || price == 0 || price == common.MaxPrice {
		return errors.New("price not tick-aligned or out of range")
	}
	return nil
}

// Level1Vector returns the current level-1 snapshot as a flat array:
// [trade_vol, bid_price, ask_price, bid_vol, ask_vol, bid_touch_vol,
// bid_touch_n_orders, ask_touch_vol, ask_touch_n_orders].
func (e *StepEnvNumpy) Level1Vector() []uint32 {
	s := &e.StepEnv.stats
	last := len(s.bidPrice) - 1
	if last < 0 {
		return make([]uint32, 9)
	}
	return []uint32{
		uint32(s.tradeVol[last]),
		s.bidPrice[last],
		s.askPrice[last],
		uint32(s.bidVol[last]),
		uint32(s.askVol[last]),
		uint32(s.bidTouchVol[last]),
		s.bidTouchOrders[last],
		uint32(s.askTouchVol[last]),
		s.askTouchOrders[last],
	}
}

// Level1VectorLegacy is the legacy variant that omits the leading
// trade_vol entry.
func (e *StepEnvNumpy) Level1VectorLegacy() []uint32 {
	v := e.Level1Vector()
	return v[1:]
}

// Level2Vector returns the level-1 vector followed by, for each of the
// top 10 price levels per side in best-first order, the quadruple
// (bid_vol_k, bid_n_orders_k, ask_vol_k, ask_n_orders_k). Missing levels
// are zero. Total length is always 9 + 40 = 45.
func (e *StepEnvNumpy) Level2Vector() []uint32 {
	out := make([]uint32, 0, 45)
	out = append(out, e.Level1Vector()...)

	s := &e.StepEnv.stats
	last := len(s.bidVolN) - 1
	for k := 0; k < 10; k++ {
		var bv, av uint64
		var bn, an uint32
		if last >= 0 {
			bv, bn = s.bidVolN[last][k], s.bidOrdersN[last][k]
			av, an = s.askVolN[last][k], s.askOrdersN[last][k]
		}
		out = append(out, uint32(bv), bn, uint32(av), an)
	}
	return out
}

// GetMarketData overrides StepEnv's level-1-only map, adding the full
// set of level-2 keys: per-touch volume/order counts and ten price
// levels deep of volume/order counts on each side.
func (e *StepEnvNumpy) GetMarketData() map[string]any {
	data := e.StepEnv.GetMarketData()
	s := &e.StepEnv.stats

	data["bid_touch_vol"] = append([]uint64(nil), s.bidTouchVol...)
	data["ask_touch_vol"] = append([]uint64(nil), s.askTouchVol...)
	data["bid_touch_order_count"] = append([]uint32(nil), s.bidTouchOrders...)
	data["ask_touch_order_count"] = append([]uint32(nil), s.askTouchOrders...)

	n := len(s.bidVolN)
	for k := 0; k < 10; k++ {
		bidVolK := make([]uint64, n)
		askVolK := make([]uint64, n)
		nBidK := make([]uint32, n)
		nAskK := make([]uint32, n)
		for i := 0; i < n; i++ {
			bidVolK[i] = s.bidVolN[i][k]
			askVolK[i] = s.askVolN[i][k]
			nBidK[i] = s.bidOrdersN[i][k]
			nAskK[i] = s.askOrdersN[i][k]
		}
		data[fmt.Sprintf("bid_vol_%d", k)] = bidVolK
		data[fmt.Sprintf("ask_vol_%d", k)] = askVolK
		data[fmt.Sprintf("n_bid_%d", k)] = nBidK
		data[fmt.Sprintf("n_ask_%d", k)] = nAskK
	}
	return data
}
