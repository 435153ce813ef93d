package engine

import (
	"container/list"
	"sync"

	"matchbook/internal/common"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"
)

// priceLevel is one price bucket: a FIFO of resting orders, oldest first.
type priceLevel struct {
	price  common.Price
	orders *list.List
}

func newPriceLevel(price common.Price) *priceLevel {
	return &priceLevel{price: price, orders: list.New()}
}

type levelAggregate struct {
	count    int
	quantity common.Quantity
}

type levelAction int

const (
	levelAdd levelAction = iota
	levelRemove
	levelMatch
)

// OrderBook is a single-instrument price-time-priority matching book. It is
// safe for concurrent use; every exported method other than Close (which
// only stops the pruner) acquires the book's mutex for its full duration
// except the documented middle of ModifyOrder. An
// OrderBook must not be copied after first use: it embeds a mutex and owns
// a running pruner goroutine.
type OrderBook struct {
	mu sync.Mutex

	bids *btree.BTreeG[*priceLevel] // descending: highest price first
	asks *btree.BTreeG[*priceLevel] // ascending: lowest price first

	orderIndex map[common.OrderId]*order
	levelData  map[common.Price]*levelAggregate

	reporter Reporter

	pruner *pruner
}

// NewOrderBook constructs an empty book and starts its GoodForDay pruner.
func NewOrderBook() *OrderBook {
	b := &OrderBook{
		bids: btree.NewBTreeG(func(a, b *priceLevel) bool {
			return a.price > b.price
		}),
		asks: btree.NewBTreeG(func(a, b *priceLevel) bool {
			return a.price < b.price
		}),
		orderIndex: make(map[common.OrderId]*order),
		levelData:  make(map[common.Price]*levelAggregate),
	}
	b.pruner = startPruner(b)
	return b
}

// SetReporter installs the collaborator notified of every trade produced by
// this book from now on.
func (b *OrderBook) SetReporter(r Reporter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reporter = r
}

// Close stops the book's background pruner and waits for it to exit. It
// does not clear resting orders.
func (b *OrderBook) Close() {
	b.pruner.shutdown()
}

// AddOrder admits an order into the book. It returns the trades produced by
// the resulting crossing, in price-priority-then-FIFO order. A duplicate id,
// a Market order with no opposite-side liquidity, a non-marketable
// FillAndKill, or an under-liquid FillOrKill are all silent rejections:
// (nil, nil), no state change.
func (b *OrderBook) AddOrder(id common.OrderId, orderType common.OrderType, side common.Side, price common.Price, quantity common.Quantity) ([]common.Trade, error) {
	var o *order
	if orderType == common.Market {
		// A Market order carries no meaningful limit price of its own; the
		// caller's price is ignored in favor of repricing to the opposite
		// side's worst resting price once admission confirms liquidity.
		o = newMarketOrder(id, side, quantity)
	} else {
		o = newOrder(id, orderType, side, price, quantity)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addOrderLocked(o), nil
}

func (b *OrderBook) addOrderLocked(o *order) []common.Trade {
	if _, exists := b.orderIndex[o.id]; exists {
		return nil
	}

	switch o.orderType {
	case common.Market:
		worst, ok := b.oppositeWorstPriceLocked(o.side)
		if !ok {
			return nil
		}
		o.repriceToWorst(worst)
	case common.FillAndKill:
		if !b.canMatchLocked(o.side, o.price) {
			return nil
		}
	case common.FillOrKill:
		if !b.canFullyFillLocked(o.side, o.price, o.initialQuantity) {
			return nil
		}
	}

	b.insertLocked(o)
	trades := b.matchOrdersLocked()

	log.Debug().
		Uint64("order_id", uint64(o.id)).
		Str("side", o.side.String()).
		Str("type", o.orderType.String()).
		Int32("price", int32(o.price)).
		Uint32("quantity", uint32(o.initialQuantity)).
		Int("trades", len(trades)).
		Msg("order admitted")

	for _, trade := range trades {
		if b.reporter != nil {
			if err := b.reporter.ReportTrade(trade, nil); err != nil {
				log.Error().Err(err).Msg("reporter failed to deliver trade")
			}
		}
	}

	return trades
}

// insertLocked appends o to the tail of its side's price bucket, records it
// in the order index, and credits the level aggregate. o must not already
// be admitted.
func (b *OrderBook) insertLocked(o *order) {
	ladder := b.ladderFor(o.side)
	key := &priceLevel{price: o.price}
	level, ok := ladder.GetMut(key)
	if !ok {
		level = newPriceLevel(o.price)
		ladder.Set(level)
	}
	o.elem = level.orders.PushBack(o)
	b.orderIndex[o.id] = o
	b.updateLevelData(o.price, o.initialQuantity, levelAdd)
}

func (b *OrderBook) ladderFor(side common.Side) *btree.BTreeG[*priceLevel] {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// oppositeWorstPriceLocked returns the worst resting price on the side
// opposite to side: the maximum ask for a Buy, the minimum bid for a Sell.
func (b *OrderBook) oppositeWorstPriceLocked(side common.Side) (common.Price, bool) {
	if side == common.Buy {
		level, ok := b.asks.Max()
		if !ok {
			return 0, false
		}
		return level.price, true
	}
	level, ok := b.bids.Max()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// canMatchLocked reports whether an incoming order at price/side is
// immediately marketable against the best opposite-side price.
func (b *OrderBook) canMatchLocked(side common.Side, price common.Price) bool {
	if side == common.Buy {
		level, ok := b.asks.Min()
		if !ok {
			return false
		}
		return price >= level.price
	}
	level, ok := b.bids.Min()
	if !ok {
		return false
	}
	return price <= level.price
}

// canFullyFillLocked reports whether the opposite side currently holds
// enough liquidity, at prices satisfying the constraint, to fill quantity in
// full. It walks the opposite ladder in natural matching order and stops as
// soon as a level's price fails the threshold: since the ladder is ordered
// (ascending for asks, descending for bids), no later level could satisfy
// the constraint either, so continuing to walk cannot uncover more usable
// liquidity.
func (b *OrderBook) canFullyFillLocked(side common.Side, price common.Price, quantity common.Quantity) bool {
	var accumulated uint64
	target := uint64(quantity)
	satisfied := false

	walk := func(ladder *btree.BTreeG[*priceLevel], satisfiesPrice func(common.Price) bool) {
		ladder.Scan(func(level *priceLevel) bool {
			if !satisfiesPrice(level.price) {
				return false
			}
			if agg, ok := b.levelData[level.price]; ok {
				accumulated += uint64(agg.quantity)
			}
			if accumulated >= target {
				satisfied = true
				return false
			}
			return true
		})
	}

	switch side {
	case common.Buy:
		walk(b.asks, func(p common.Price) bool { return p <= price })
	case common.Sell:
		walk(b.bids, func(p common.Price) bool { return p >= price })
	}
	return satisfied
}

// matchOrdersLocked consumes crossing top-of-book price levels until the
// book is no longer crossed, pairing FIFO heads at each level in strict
// price-time priority. It returns the trades produced, then cleans up any
// FillAndKill residual left resting at the new top of either side.
func (b *OrderBook) matchOrdersLocked() []common.Trade {
	var trades []common.Trade

	for {
		bidLevel, bidOk := b.bids.MinMut()
		askLevel, askOk := b.asks.MinMut()
		if !bidOk || !askOk || bidLevel.price < askLevel.price {
			break
		}

		for bidLevel.orders.Len() > 0 && askLevel.orders.Len() > 0 {
			bidElem := bidLevel.orders.Front()
			askElem := askLevel.orders.Front()
			bidOrder := bidElem.Value.(*order)
			askOrder := askElem.Value.(*order)

			qty := min(bidOrder.remainingQuantity, askOrder.remainingQuantity)

			b.applyFillLocked(bidOrder, qty)
			b.applyFillLocked(askOrder, qty)

			trades = append(trades, common.Trade{
				Bid: common.TradeLeg{OrderID: bidOrder.id, Price: bidOrder.price, Quantity: qty},
				Ask: common.TradeLeg{OrderID: askOrder.id, Price: askOrder.price, Quantity: qty},
			})

			if bidOrder.isFilled() {
				bidLevel.orders.Remove(bidElem)
				delete(b.orderIndex, bidOrder.id)
			}
			if askOrder.isFilled() {
				askLevel.orders.Remove(askElem)
				delete(b.orderIndex, askOrder.id)
			}
		}

		if bidLevel.orders.Len() == 0 {
			b.bids.Delete(bidLevel)
		}
		if askLevel.orders.Len() == 0 {
			b.asks.Delete(askLevel)
		}
	}

	b.cleanupResidualIOCLocked(b.bids)
	b.cleanupResidualIOCLocked(b.asks)

	return trades
}

// applyFillLocked debits qty from o and keeps levelData consistent: every
// fill is a Match event against the level's aggregate quantity, and if the
// fill exhausts the order it is additionally a Remove event against the
// level's count (the quantity component of that Remove is a no-op, since
// remainingQuantity is already zero by then).
func (b *OrderBook) applyFillLocked(o *order, qty common.Quantity) {
	o.fill(qty)
	b.updateLevelData(o.price, qty, levelMatch)
	if o.isFilled() {
		b.updateLevelData(o.price, o.remainingQuantity, levelRemove)
	}
}

// cleanupResidualIOCLocked cancels the order resting at the top of ladder if
// it is a FillAndKill. This catches an IOC that rested momentarily because
// it paired against its own price level but the opposite side ran dry
// before it could fully drain — it must never be left resting.
func (b *OrderBook) cleanupResidualIOCLocked(ladder *btree.BTreeG[*priceLevel]) {
	level, ok := ladder.Min()
	if !ok || level.orders.Len() == 0 {
		return
	}
	head := level.orders.Front().Value.(*order)
	if head.orderType == common.FillAndKill {
		b.cancelOrderLocked(head.id)
	}
}

// updateLevelData applies one of the three level-aggregate mutation events
// described by the matching engine: Add (admission), Remove (cancellation
// or full fill), and Match (partial fill). A level is evicted once its
// count reaches zero.
func (b *OrderBook) updateLevelData(price common.Price, quantity common.Quantity, action levelAction) {
	agg, ok := b.levelData[price]
	if !ok {
		if action != levelAdd {
			return
		}
		agg = &levelAggregate{}
		b.levelData[price] = agg
	}

	switch action {
	case levelAdd:
		agg.count++
		agg.quantity += quantity
	case levelRemove:
		agg.count--
		agg.quantity -= quantity
	case levelMatch:
		agg.quantity -= quantity
	}

	if agg.count <= 0 {
		delete(b.levelData, price)
	}
}

// CancelOrder removes a resting order from the book. Unknown ids are a
// silent no-op.
func (b *OrderBook) CancelOrder(id common.OrderId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelOrderLocked(id)
}

// cancelOrderLocked is the non-locking cancel primitive; callers (public
// CancelOrder, ModifyOrder, the pruner's batch cancel, residual IOC
// cleanup) must already hold the mutex.
func (b *OrderBook) cancelOrderLocked(id common.OrderId) {
	o, ok := b.orderIndex[id]
	if !ok {
		return
	}
	delete(b.orderIndex, id)

	ladder := b.ladderFor(o.side)
	key := &priceLevel{price: o.price}
	level, ok := ladder.GetMut(key)
	if ok {
		level.orders.Remove(o.elem)
		if level.orders.Len() == 0 {
			ladder.Delete(level)
		}
	}

	b.updateLevelData(o.price, o.remainingQuantity, levelRemove)
}

// batchCancelLocked cancels every id in ids under a single mutex
// acquisition, avoiding one lock round-trip per order. Callers must already
// hold the mutex.
func (b *OrderBook) batchCancelLocked(ids []common.OrderId) {
	for _, id := range ids {
		b.cancelOrderLocked(id)
	}
}

// ModifyOrder replaces the order identified by id with a new order carrying
// the supplied side/price/quantity, preserving its original type. An
// unknown id produces no trades. The replacement loses time priority: it is
// appended to the tail of its new price bucket exactly as any freshly
// admitted order would be.
//
// Note: this reads the existing order's type under the mutex, releases it,
// then cancels and re-admits under fresh acquisitions. Another thread could
// observe and act on the order between those steps; this is a documented
// hazard inherited from the source design, not a bug (see DESIGN.md).
func (b *OrderBook) ModifyOrder(id common.OrderId, side common.Side, price common.Price, quantity common.Quantity) ([]common.Trade, error) {
	b.mu.Lock()
	existing, ok := b.orderIndex[id]
	if !ok {
		b.mu.Unlock()
		return nil, nil
	}
	preservedType := existing.orderType
	b.mu.Unlock()

	b.CancelOrder(id)
	return b.AddOrder(id, preservedType, side, price, quantity)
}

// Size returns the number of resting orders.
func (b *OrderBook) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orderIndex)
}

// GetLevelInfos snapshots aggregated book state: bids highest price first,
// asks lowest price first.
func (b *OrderBook) GetLevelInfos() common.BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	bidLevels := b.bids.Items()
	askLevels := b.asks.Items()

	snapshot := common.BookSnapshot{
		Bids: make([]common.LevelInfo, 0, len(bidLevels)),
		Asks: make([]common.LevelInfo, 0, len(askLevels)),
	}
	for _, level := range bidLevels {
		snapshot.Bids = append(snapshot.Bids, common.LevelInfo{
			Price:    level.price,
			Quantity: b.levelData[level.price].quantity,
		})
	}
	for _, level := range askLevels {
		snapshot.Asks = append(snapshot.Asks, common.LevelInfo{
			Price:    level.price,
			Quantity: b.levelData[level.price].quantity,
		})
	}
	return snapshot
}

func min(a, b common.Quantity) common.Quantity {
	if a < b {
		return a
	}
	return b
}
