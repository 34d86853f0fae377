// Package net implements the binary TCP wire protocol an external agent
// runner uses to stage instructions against a StepEnv and trigger steps.
// Each frame starts with a 2-byte message type and carries no length
// prefix; the server parses the bytes of one conn.Read as one frame.
package net

import (
	"encoding/binary"
	"errors"

	"bourse/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("net: invalid message type")
	ErrMessageTooShort    = errors.New("net: message too short for its declared shape")
)

// MessageType identifies the wire message kind; the first two bytes of
// every frame.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	ModifyOrder
	SubmitBatch
	Step
	LogBook
)

// ReportMessageType identifies the wire message kind of a server->client
// report.
type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// BaseMessage carries the common 2-byte type header.
type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

const (
	BaseMessageHeaderLen  = 2
	NewOrderMessageLen    = 2 + 1 + 1 + 4 + 8 + 4 // type + side + isMarket + vol + traderID + price
	CancelOrderMessageLen = 2 + 8
	ModifyOrderMessageLen = 2 + 8 + 1 + 4 + 1 + 4 // type + id + hasPrice + price + hasVol + vol
)

// NewOrderMessage stages a single new order.
type NewOrderMessage struct {
	BaseMessage
	Side     common.Side
	IsMarket bool
	Vol      uint32
	TraderID uint64
	Price    uint32 // ignored when IsMarket
}

func parseNewOrder(body []byte) (NewOrderMessage, error) {
	if len(body) < NewOrderMessageLen-BaseMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.Side = common.Side(body[0] != 0)
	m.IsMarket = body[1] != 0
	m.Vol = binary.BigEndian.Uint32(body[2:6])
	m.TraderID = binary.BigEndian.Uint64(body[6:14])
	m.Price = binary.BigEndian.Uint32(body[14:18])
	return m, nil
}

// CancelOrderMessage stages a cancellation of OrderID.
type CancelOrderMessage struct {
	BaseMessage
	OrderID uint64
}

func parseCancelOrder(body []byte) (CancelOrderMessage, error) {
	if len(body) < CancelOrderMessageLen-BaseMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	return CancelOrderMessage{
		BaseMessage: BaseMessage{TypeOf: CancelOrder},
		OrderID:     binary.BigEndian.Uint64(body[0:8]),
	}, nil
}

// ModifyOrderMessage stages a price and/or volume change.
type ModifyOrderMessage struct {
	BaseMessage
	OrderID  uint64
	HasPrice bool
	Price    uint32
	HasVol   bool
	Vol      uint32
}

func parseModifyOrder(body []byte) (ModifyOrderMessage, error) {
	if len(body) < ModifyOrderMessageLen-BaseMessageHeaderLen {
		return ModifyOrderMessage{}, ErrMessageTooShort
	}
	return ModifyOrderMessage{
		BaseMessage: BaseMessage{TypeOf: ModifyOrder},
		OrderID:     binary.BigEndian.Uint64(body[0:8]),
		HasPrice:    body[8] != 0,
		Price:       binary.BigEndian.Uint32(body[9:13]),
		HasVol:      body[13] != 0,
		Vol:         binary.BigEndian.Uint32(body[14:18]),
	}, nil
}

// StepMessage triggers StepEnv.Step() server-side; it carries no body.
type StepMessage struct{ BaseMessage }

// LogBookMessage requests a server-side log of the current book state.
type LogBookMessage struct{ BaseMessage }

// SubmitBatchMessage stages a six-array instruction block. Rows are
// framed back to back: kind(1) side(1) vol(4) traderID(4) price(4)
// orderID(8) = 22 bytes per row, preceded by a uint32 row count.
type SubmitBatchMessage struct {
	BaseMessage
	Kind     []uint8
	Side     []bool
	Vol      []uint32
	TraderID []uint32
	Price    []uint32
	OrderID  []uint64
}

const batchRowLen = 1 + 1 + 4 + 4 + 4 + 8

func parseSubmitBatch(body []byte) (SubmitBatchMessage, error) {
	if len(body) < 4 {
		return SubmitBatchMessage{}, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint32(body[0:4]))
	body = body[4:]
	if len(body) < n*batchRowLen {
		return SubmitBatchMessage{}, ErrMessageTooShort
	}

	m := SubmitBatchMessage{
		BaseMessage: BaseMessage{TypeOf: SubmitBatch},
		Kind:        make([]uint8, n),
		Side:        make([]bool, n),
		Vol:         make([]uint32, n),
		TraderID:    make([]uint32, n),
		Price:       make([]uint32, n),
		OrderID:     make([]uint64, n),
	}
	for i := 0; i < n; i++ {
		row := body[i*batchRowLen : (i+1)*batchRowLen]
		m.Kind[i] = row[0]
		m.Side[i] = row[1] != 0
		m.Vol[i] = binary.BigEndian.Uint32(row[2:6])
		m.TraderID[i] = binary.BigEndian.Uint32(row[6:10])
		m.Price[i] = binary.BigEndian.Uint32(row[10:14])
		m.OrderID[i] = binary.BigEndian.Uint64(row[14:22])
	}
	return m, nil
}

// parseMessage reads the 2-byte type header off a raw frame and parses
// the remainder according to that type.
func parseMessage(frame []byte) (Message, error) {
	if len(frame) < BaseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(frame[0:2]))
	body := frame[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case ModifyOrder:
		return parseModifyOrder(body)
	case SubmitBatch:
		return parseSubmitBatch(body)
	case Step:
		return StepMessage{BaseMessage{TypeOf: Step}}, nil
	case LogBook:
		return LogBookMessage{BaseMessage{TypeOf: LogBook}}, nil
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

// Report is a server->client execution or error notification.
type Report struct {
	MessageType ReportMessageType
	OrderID     uint64
	Side        common.Side
	Price       uint32
	Vol         uint32
	Timestamp   int64
	ErrStrLen   uint32
	Err         string
}

const reportFixedLen = 1 + 8 + 1 + 4 + 4 + 8 + 4

// Serialize packs a Report into its wire form.
func (r *Report) Serialize() []byte {
	buf := make([]byte, reportFixedLen+len(r.Err))
	buf[0] = byte(r.MessageType)
	binary.BigEndian.PutUint64(buf[1:9], r.OrderID)
	if r.Side {
		buf[9] = 1
	}
	binary.BigEndian.PutUint32(buf[10:14], r.Price)
	binary.BigEndian.PutUint32(buf[14:18], r.Vol)
	binary.BigEndian.PutUint64(buf[18:26], uint64(r.Timestamp))
	binary.BigEndian.PutUint32(buf[26:30], r.ErrStrLen)
	copy(buf[reportFixedLen:], r.Err)
	return buf
}
