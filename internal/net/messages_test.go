package net

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bourse/internal/common"
)

func TestParseMessage_NewOrder(t *testing.T) {
	buf := make([]byte, NewOrderMessageLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = 1 // bid
	buf[3] = 0 // limit
	binary.BigEndian.PutUint32(buf[4:8], 10)
	binary.BigEndian.PutUint64(buf[8:16], 7)
	binary.BigEndian.PutUint32(buf[16:20], 50)

	msg, err := parseMessage(buf)
	require.NoError(t, err)

	order, ok := msg.(NewOrderMessage)
	require.True(t, ok)
	assert.Equal(t, common.Bid, order.Side)
	assert.False(t, order.IsMarket)
	assert.Equal(t, uint32(10), order.Vol)
	assert.Equal(t, uint64(7), order.TraderID)
	assert.Equal(t, uint32(50), order.Price)
}

func TestParseMessage_CancelOrder(t *testing.T) {
	buf := make([]byte, CancelOrderMessageLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	binary.BigEndian.PutUint64(buf[2:10], 42)

	msg, err := parseMessage(buf)
	require.NoError(t, err)

	cancel, ok := msg.(CancelOrderMessage)
	require.True(t, ok)
	assert.Equal(t, uint64(42), cancel.OrderID)
}

func TestParseMessage_SubmitBatch(t *testing.T) {
	buf := make([]byte, 0)
	header := make([]byte, 2+4)
	binary.BigEndian.PutUint16(header[0:2], uint16(SubmitBatch))
	binary.BigEndian.PutUint32(header[2:6], 1)
	buf = append(buf, header...)

	row := make([]byte, batchRowLen)
	row[0] = 1 // new limit
	row[1] = 1 // bid
	binary.BigEndian.PutUint32(row[2:6], 10)
	binary.BigEndian.PutUint32(row[6:10], 3)
	binary.BigEndian.PutUint32(row[10:14], 55)
	binary.BigEndian.PutUint64(row[14:22], 0)
	buf = append(buf, row...)

	msg, err := parseMessage(buf)
	require.NoError(t, err)

	batch, ok := msg.(SubmitBatchMessage)
	require.True(t, ok)
	require.Len(t, batch.Kind, 1)
	assert.Equal(t, uint8(1), batch.Kind[0])
	assert.True(t, batch.Side[0])
	assert.Equal(t, uint32(10), batch.Vol[0])
	assert.Equal(t, uint32(55), batch.Price[0])
}

func TestParseMessage_TooShort(t *testing.T) {
	_, err := parseMessage([]byte{0})
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestParseMessage_UnknownType(t *testing.T) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf[0:2], 999)
	_, err := parseMessage(buf)
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestReport_SerializeRoundTrips(t *testing.T) {
	r := Report{MessageType: ExecutionReport, OrderID: 5, Side: common.Bid, Price: 50, Vol: 10, Timestamp: 100}
	buf := r.Serialize()

	assert.Equal(t, byte(ExecutionReport), buf[0])
	assert.Equal(t, uint64(5), binary.BigEndian.Uint64(buf[1:9]))
	assert.Equal(t, uint32(50), binary.BigEndian.Uint32(buf[10:14]))
	assert.Equal(t, uint32(10), binary.BigEndian.Uint32(buf[14:18]))
}
