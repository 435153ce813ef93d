package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order is the collaborator-facing request shape: what arrives over the
// wire (or from an in-process caller) before it is admitted into a book.
// The matching core never stores this type directly; its fields are passed
// to AddOrder, which builds the core's own order record from them.
type Order struct {
	OrderID       OrderId
	AssetType     AssetType
	OrderType     OrderType
	Ticker        string
	Side          Side
	Price         Price
	Quantity      Quantity
	Timestamp     time.Time // Time of arrival of order
	ExchTimestamp time.Time // Time of arrival of order into the book
	Owner         string    // Who owns this order
	// ClientRef correlates execution reports back to the request that
	// caused them; it plays no role in matching.
	ClientRef string
}

// NewClientRef generates a fresh correlation id for an outbound request.
func NewClientRef() string {
	return uuid.New().String()
}

func (order Order) String() string {
	return fmt.Sprintf(
		`OrderID:       %d
AssetType:     %v
OrderType:     %v
Ticker:        %s
Side:          %v
Price:         %d
Quantity:      %d
Timestamp:     %v
ExchTimestamp: %v
Owner:         %s
ClientRef:     %s`,
		order.OrderID,
		order.AssetType,
		order.OrderType,
		order.Ticker,
		order.Side,
		order.Price,
		order.Quantity,
		order.Timestamp.Format(time.RFC3339),
		order.ExchTimestamp.Format(time.RFC3339),
		order.Owner,
		order.ClientRef,
	)
}
