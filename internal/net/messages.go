package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	. "matchbook/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified username length")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	LogBook
)

type ReportMessageType int

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants. OrderId/Price/Quantity widths match the
// matching core's own fixed-width types, so no conversion happens anywhere
// but the byte boundary.
const (
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 2 + 2 + 4 + 4 + 4 + 1 + 1
	CancelOrderMessageHeaderLen = 2 + 8
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, errors.New("message too short to contain header")
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case LogBook:
		return BaseMessage{TypeOf: LogBook}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

type NewOrderMessage struct {
	BaseMessage
	AssetType   AssetType // 2 bytes
	OrderType   OrderType // 2 bytes
	Ticker      string    // 4 bytes
	Price       Price     // 4 bytes
	Quantity    Quantity  // 4 bytes
	Side        Side      // 1 byte
	UsernameLen uint8     // 1 byte
	Username    string    // n bytes
}

func (o *NewOrderMessage) Order() Order {
	return Order{
		AssetType: o.AssetType,
		OrderType: o.OrderType,
		Ticker:    o.Ticker,
		Price:     o.Price,
		Quantity:  o.Quantity,
		Side:      o.Side,
		Owner:     o.Username,
		ClientRef: NewClientRef(),
	}
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}

	m.AssetType = AssetType(binary.BigEndian.Uint16(msg[0:2]))
	m.OrderType = OrderType(binary.BigEndian.Uint16(msg[2:4]))
	m.Ticker = string(msg[4:8]) // Assuming ASCII/UTF-8 string
	m.Price = Price(int32(binary.BigEndian.Uint32(msg[8:12])))
	m.Quantity = Quantity(binary.BigEndian.Uint32(msg[12:16]))
	m.Side = Side(msg[16])
	m.UsernameLen = uint8(msg[17])

	// Calculate expected total length.
	expectedTotalLen := int(NewOrderMessageHeaderLen) + int(m.UsernameLen)
	if len(msg) < expectedTotalLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Username = string(msg[18 : 18+m.UsernameLen])

	return m, nil
}

type CancelOrderMessage struct {
	BaseMessage
	AssetType AssetType // 2 bytes
	OrderID   OrderId   // 8 bytes
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}

	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m.AssetType = AssetType(binary.BigEndian.Uint16(msg[0:2]))
	m.OrderID = OrderId(binary.BigEndian.Uint64(msg[2:10]))

	return m, nil
}

type Report struct {
	MessageType     ReportMessageType // 1 byte
	AssetType       AssetType         // 1 byte
	Side            Side              // 1 byte
	Timestamp       uint64            // 8 bytes
	Quantity        Quantity          // 4 bytes
	Price           Price             // 4 bytes
	CounterpartyLen uint16            // 2 bytes
	ErrStrLen       uint32            // 4 bytes
	Ticker          string            // 4 bytes
	OrderID         OrderId           // 8 bytes
	Err             string            // n bytes
	Counterparty    string            // n bytes (in this case we show who)
}

const reportFixedHeaderLen = 1 + 1 + 1 + 8 + 4 + 4 + 2 + 4 + 4 + 8

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() ([]byte, error) {
	totalSize := reportFixedHeaderLen + len(r.Err) + len(r.Counterparty)

	buf := make([]byte, totalSize)
	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.AssetType)
	buf[2] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[3:11], r.Timestamp)
	binary.BigEndian.PutUint32(buf[11:15], uint32(r.Quantity))
	binary.BigEndian.PutUint32(buf[15:19], uint32(int32(r.Price)))
	binary.BigEndian.PutUint16(buf[19:21], r.CounterpartyLen)
	binary.BigEndian.PutUint32(buf[21:25], r.ErrStrLen)

	// Pack fixed-width fields (Ticker and OrderID) into fixed buffers.
	// copy() ensures we don't panic if the ticker is shorter than 4 bytes.
	ticker := make([]byte, 4)
	copy(ticker, r.Ticker)
	copy(buf[25:29], ticker)
	binary.BigEndian.PutUint64(buf[29:37], uint64(r.OrderID))

	offset := reportFixedHeaderLen
	if r.ErrStrLen > 0 {
		copy(buf[offset:], r.Err)
	}
	offset += int(r.ErrStrLen)
	if r.CounterpartyLen > 0 {
		copy(buf[offset:], r.Counterparty)
	}
	return buf, nil
}

// generateWireTradeReports generates the two execution reports addressable
// to each counterparty of an Execution.
func generateWireTradeReports(exec Execution, deliveryErr error) ([]byte, []byte, error) {
	errStr := ""
	if deliveryErr != nil {
		errStr = fmt.Sprintf("%v", deliveryErr)
	}

	createReport := func(party *Order, counterParty *Order) Report {
		ticker := party.Ticker
		if len(ticker) > 4 {
			ticker = ticker[:4]
		}
		return Report{
			MessageType:     ExecutionReport,
			AssetType:       counterParty.AssetType,
			Side:            party.Side,
			Timestamp:       uint64(exec.Timestamp.Unix()),
			Quantity:        exec.MatchQty,
			Price:           exec.Price,
			CounterpartyLen: uint16(len(counterParty.Owner)),
			ErrStrLen:       uint32(len(errStr)),
			Ticker:          ticker,
			OrderID:         party.OrderID,
			Counterparty:    counterParty.Owner,
			Err:             errStr,
		}
	}

	r1 := createReport(exec.Party, exec.CounterParty)
	r2 := createReport(exec.CounterParty, exec.Party)

	b1, err := r1.Serialize()
	if err != nil {
		return nil, nil, err
	}

	b2, err := r2.Serialize()
	if err != nil {
		return nil, nil, err
	}

	return b1, b2, nil
}

func generateWireErrorReports(err error) ([]byte, error) {
	errStr := fmt.Sprintf("%v", err)
	report := Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(time.Now().UnixNano()),
		ErrStrLen:   uint32(len(errStr)),
		Err:         errStr,
	}
	return report.Serialize()
}
