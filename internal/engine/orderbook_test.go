package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bourse/internal/common"
	"bourse/internal/engine"
)

func price(p uint32) *uint32 { return &p }

func setupFourOrders(t *testing.T, b *engine.OrderBook) (idBid50, idAsk60, idBid55, idAsk65 uint64) {
	t.Helper()
	var err error
	idBid50, err = b.PlaceOrder(common.Bid, 10, 11, price(50))
	require.NoError(t, err)
	idAsk60, err = b.PlaceOrder(common.Ask, 20, 12, price(60))
	require.NoError(t, err)
	idBid55, err = b.PlaceOrder(common.Bid, 10, 11, price(55))
	require.NoError(t, err)
	idAsk65, err = b.PlaceOrder(common.Ask, 20, 12, price(65))
	require.NoError(t, err)
	return
}

func TestScenario_BasicMatching(t *testing.T) {
	b := engine.New(1, 0)
	_, idAsk60, _, idAsk65 := setupFourOrders(t, b)

	require.NoError(t, b.SetTime(10))
	aggID, err := b.PlaceOrder(common.Bid, 30, 11, nil)
	require.NoError(t, err)

	trades := b.GetTrades()
	require.Len(t, trades, 2)

	assert.Equal(t, common.TradeRecord{
		Time: 10, Side: common.Ask, Price: 60, Vol: 20, ActiveID: aggID, PassiveID: idAsk60,
	}, trades[0])
	assert.Equal(t, common.TradeRecord{
		Time: 10, Side: common.Ask, Price: 65, Vol: 10, ActiveID: aggID, PassiveID: idAsk65,
	}, trades[1])

	bid, ask := b.BidAsk()
	assert.Equal(t, uint32(55), bid)
	assert.Equal(t, uint32(65), ask)
	assert.Equal(t, uint64(20), b.BidVol())
	assert.Equal(t, uint64(10), b.AskVol())

	status, err := b.OrderStatus(aggID)
	require.NoError(t, err)
	assert.Equal(t, common.Filled, status)
}

func TestScenario_Cancellation(t *testing.T) {
	b := engine.New(1, 0)
	idBid50, idAsk60, idBid55, idAsk65 := setupFourOrders(t, b)

	require.NoError(t, b.CancelOrder(idBid55))
	require.NoError(t, b.CancelOrder(idAsk65))

	bid, ask := b.BidAsk()
	assert.Equal(t, uint32(50), bid)
	assert.Equal(t, uint32(60), ask)
	assert.Equal(t, uint64(10), b.BidVol())
	assert.Equal(t, uint64(20), b.AskVol())

	require.NoError(t, b.CancelOrder(idBid50))
	require.NoError(t, b.CancelOrder(idAsk60))

	bid, ask = b.BidAsk()
	assert.Equal(t, uint32(0), bid)
	assert.Equal(t, common.MaxPrice, ask)
	assert.Equal(t, uint64(0), b.BidVol())
	assert.Equal(t, uint64(0), b.AskVol())

	for _, id := range []uint64{idBid50, idAsk60, idBid55, idAsk65} {
		status, err := b.OrderStatus(id)
		require.NoError(t, err)
		assert.Equal(t, common.Cancelled, status)
	}
}

func TestScenario_VolumeOnlyModify(t *testing.T) {
	b := engine.New(1, 0)
	_, _, idBid55, idAsk65 := setupFourOrders(t, b)

	require.NoError(t, b.ModifyOrder(idBid55, nil, price(5)))
	require.NoError(t, b.ModifyOrder(idAsk65, nil, price(10)))

	bid, ask := b.BidAsk()
	assert.Equal(t, uint32(55), bid)
	assert.Equal(t, uint32(60), ask)
	assert.Equal(t, uint64(15), b.BidVol())
	assert.Equal(t, uint64(30), b.AskVol())
	assert.Equal(t, uint64(5), b.BestBidVol())
	assert.Equal(t, uint64(20), b.BestAskVol())
}

func TestScenario_PriceModify(t *testing.T) {
	b := engine.New(1, 0)
	idBid, err := b.PlaceOrder(common.Bid, 10, 1, price(50))
	require.NoError(t, err)
	_, err = b.PlaceOrder(common.Ask, 30, 2, price(60))
	require.NoError(t, err)

	require.NoError(t, b.ModifyOrder(idBid, price(45), price(20)))

	bid, ask := b.BidAsk()
	assert.Equal(t, uint32(45), bid)
	assert.Equal(t, uint32(60), ask)
	assert.Equal(t, uint64(20), b.BidVol())
	assert.Equal(t, uint64(30), b.AskVol())

	status, err := b.OrderStatus(idBid)
	require.NoError(t, err)
	assert.Equal(t, common.Active, status)
}

// P1: bid < ask whenever both sides are non-empty.
func TestProperty_BidBelowAsk(t *testing.T) {
	b := engine.New(1, 0)
	_, err := b.PlaceOrder(common.Bid, 10, 1, price(50))
	require.NoError(t, err)
	_, err = b.PlaceOrder(common.Ask, 10, 2, price(60))
	require.NoError(t, err)

	bid, ask := b.BidAsk()
	assert.Less(t, bid, ask)
}

// P2: bid_vol/ask_vol equal the sum of their resting levels' volumes.
func TestProperty_VolumeSumsMatchLevels(t *testing.T) {
	b := engine.New(1, 0)
	_, err := b.PlaceOrder(common.Bid, 10, 1, price(50))
	require.NoError(t, err)
	_, err = b.PlaceOrder(common.Bid, 7, 1, price(49))
	require.NoError(t, err)

	var sum uint64
	for _, lvl := range b.Bids().Items() {
		sum += lvl.Volume
	}
	assert.Equal(t, sum, b.BidVol())
}

// P3: N non-matching limit orders yield a dense run of IDs.
func TestProperty_DenseOrderIDs(t *testing.T) {
	b := engine.New(1, 0)
	first, err := b.PlaceOrder(common.Bid, 10, 1, price(10))
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		id, err := b.PlaceOrder(common.Bid, 10, 1, price(uint32(10-i-1)))
		require.NoError(t, err)
		assert.Equal(t, first+uint64(i)+1, id)
	}
}

// P4: trade log volume equals half the sum of (start_vol - vol) over every order.
func TestProperty_TradeVolumeConservation(t *testing.T) {
	b := engine.New(1, 0)
	setupFourOrders(t, b)
	require.NoError(t, b.SetTime(10))
	_, err := b.PlaceOrder(common.Bid, 30, 11, nil)
	require.NoError(t, err)

	var filledDelta uint64
	for _, o := range b.GetOrders() {
		filledDelta += uint64(o.StartVol - o.Vol)
	}

	var tradeVol uint64
	for _, tr := range b.GetTrades() {
		tradeVol += uint64(tr.Vol)
	}
	assert.Equal(t, filledDelta/2, tradeVol)
}

// P6: place then immediately cancel nets zero volume change, ends Cancelled.
func TestProperty_PlaceCancelRoundtrip(t *testing.T) {
	b := engine.New(1, 0)
	bidBefore := b.BidVol()

	id, err := b.PlaceOrder(common.Bid, 15, 1, price(40))
	require.NoError(t, err)
	require.NoError(t, b.CancelOrder(id))

	assert.Equal(t, bidBefore, b.BidVol())
	status, err := b.OrderStatus(id)
	require.NoError(t, err)
	assert.Equal(t, common.Cancelled, status)
}

func TestPlaceOrder_RejectsZeroVolume(t *testing.T) {
	b := engine.New(1, 0)
	id, err := b.PlaceOrder(common.Bid, 0, 1, price(50))
	require.ErrorIs(t, err, engine.ErrZeroVolume)
	status, statusErr := b.OrderStatus(id)
	require.NoError(t, statusErr)
	assert.Equal(t, common.Rejected, status)
}

func TestPlaceOrder_RejectsMisalignedPrice(t *testing.T) {
	b := engine.New(5, 0)
	id, err := b.PlaceOrder(common.Bid, 10, 1, price(52))
	require.ErrorIs(t, err, engine.ErrBadPrice)
	status, statusErr := b.OrderStatus(id)
	require.NoError(t, statusErr)
	assert.Equal(t, common.Rejected, status)
}

func TestMarketOrder_ResidualDropped(t *testing.T) {
	b := engine.New(1, 0)
	_, err := b.PlaceOrder(common.Ask, 5, 1, price(60))
	require.NoError(t, err)

	id, err := b.PlaceOrder(common.Bid, 20, 2, nil)
	require.NoError(t, err)

	status, err := b.OrderStatus(id)
	require.NoError(t, err)
	assert.Equal(t, common.Filled, status)
	assert.Equal(t, uint64(0), b.BidVol())
}

func TestCancelOrder_UnknownIsError(t *testing.T) {
	b := engine.New(1, 0)
	err := b.CancelOrder(999)
	assert.ErrorIs(t, err, engine.ErrUnknownOrder)
}
