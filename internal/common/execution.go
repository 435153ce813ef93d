package common

import (
	"fmt"
	"time"
)

// Execution is the outbound per-counterparty notice of one leg of a Trade.
// It is a wire/collaborator concern, distinct from the core's own Trade
// type, which never carries owner or ticker information.
type Execution struct {
	Party        *Order
	CounterParty *Order
	Timestamp    time.Time
	MatchQty     Quantity
	Price        Price
}

func (e Execution) String() string {
	return fmt.Sprintf(
		`Party: [
%s]
CounterParty:   [
%s]
Timestamp:      %v
MatchQty:       %d
Price:          %d`,
		e.Party.String(),
		e.CounterParty.String(),
		e.Timestamp.Format(time.RFC3339),
		e.MatchQty,
		e.Price,
	)
}
