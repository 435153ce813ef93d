package engine

import (
	"container/list"
	"fmt"

	"matchbook/internal/common"
)

// order is the core matching record: identity, side, type, price, and the
// arithmetic of how much of it remains. It carries its own stable locator
// (elem) into the FIFO of whichever price bucket it currently rests in, so
// the order index can hand back an O(1) cancellation handle without a
// separate position type — the *list.Element pointer stays valid across
// insertion and removal of every other order in the same bucket.
type order struct {
	id                common.OrderId
	orderType         common.OrderType
	side              common.Side
	price             common.Price
	initialQuantity   common.Quantity
	remainingQuantity common.Quantity

	elem *list.Element
}

func newOrder(id common.OrderId, orderType common.OrderType, side common.Side, price common.Price, quantity common.Quantity) *order {
	return &order{
		id:                id,
		orderType:         orderType,
		side:              side,
		price:             price,
		initialQuantity:   quantity,
		remainingQuantity: quantity,
	}
}

func newMarketOrder(id common.OrderId, side common.Side, quantity common.Quantity) *order {
	return newOrder(id, common.Market, side, 0, quantity)
}

func (o *order) filledQuantity() common.Quantity {
	return o.initialQuantity - o.remainingQuantity
}

func (o *order) isFilled() bool {
	return o.remainingQuantity == 0
}

// fill debits q from the remaining quantity. Filling more than what remains
// is a programming error in the matching loop, never a legitimate outcome
// of admission or crossing, so it panics rather than returning an error.
func (o *order) fill(q common.Quantity) {
	if q > o.remainingQuantity {
		panic(fmt.Sprintf("engine: order %d overfilled: tried to fill %d, only %d remaining", o.id, q, o.remainingQuantity))
	}
	o.remainingQuantity -= q
}

// repriceToWorst converts a Market order into a resting GoodTillCancel limit
// at p, the worst price on the opposite side it is about to sweep. Only ever
// called once, at admission, before the order is inserted into any bucket.
func (o *order) repriceToWorst(p common.Price) {
	o.price = p
	o.orderType = common.GoodTillCancel
}
