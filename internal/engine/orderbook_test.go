package engine

import (
	"testing"

	"matchbook/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopReporter satisfies Reporter without touching any network or session
// state, so book-level tests never depend on internal/net.
type noopReporter struct {
	trades []common.Trade
	errs   []error
}

func (r *noopReporter) ReportTrade(trade common.Trade, err error) error {
	r.trades = append(r.trades, trade)
	r.errs = append(r.errs, err)
	return nil
}

func (r *noopReporter) ReportError(owner string, err error) error {
	return nil
}

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	b := NewOrderBook()
	t.Cleanup(b.Close)
	return b
}

// S1 — Simple cross.
func TestAddOrder_SimpleCross(t *testing.T) {
	book := newTestBook(t)

	trades, err := book.AddOrder(1, common.GoodTillCancel, common.Buy, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 1, book.Size())

	trades, err = book.AddOrder(2, common.GoodTillCancel, common.Sell, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, book.Size())
	require.Len(t, trades, 1)
	assert.Equal(t, common.Trade{
		Bid: common.TradeLeg{OrderID: 1, Price: 100, Quantity: 10},
		Ask: common.TradeLeg{OrderID: 2, Price: 100, Quantity: 10},
	}, trades[0])
}

// S2 — FOK rejection then fill.
func TestAddOrder_FillOrKill(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Sell, 100, 5)
	require.NoError(t, err)
	_, err = book.AddOrder(2, common.GoodTillCancel, common.Sell, 101, 5)
	require.NoError(t, err)

	trades, err := book.AddOrder(3, common.FillOrKill, common.Buy, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 2, book.Size(), "insufficient depth at <=100 must leave the book untouched")

	trades, err = book.AddOrder(4, common.FillOrKill, common.Buy, 101, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, common.Quantity(5), trades[0].Bid.Quantity)
	assert.Equal(t, common.Quantity(5), trades[1].Bid.Quantity)
	assert.Equal(t, 0, book.Size())
}

// S3 — IOC partial fill then drop of the residual.
func TestAddOrder_FillAndKill(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Sell, 100, 3)
	require.NoError(t, err)

	trades, err := book.AddOrder(2, common.FillAndKill, common.Buy, 100, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, common.Quantity(3), trades[0].Bid.Quantity)
	assert.Equal(t, 0, book.Size(), "the undrained residual of an IOC must never rest")
}

// S4 — Market repricing to the worst swept price.
func TestAddOrder_MarketRepricing(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Sell, 100, 4)
	require.NoError(t, err)
	_, err = book.AddOrder(2, common.GoodTillCancel, common.Sell, 102, 1)
	require.NoError(t, err)

	trades, err := book.AddOrder(3, common.Market, common.Buy, 0, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, common.Price(100), trades[0].Ask.Price)
	assert.Equal(t, common.Price(102), trades[1].Ask.Price)

	snapshot := book.GetLevelInfos()
	require.Len(t, snapshot.Bids, 1)
	assert.Equal(t, common.Price(102), snapshot.Bids[0].Price)
	assert.Equal(t, common.Quantity(5), snapshot.Bids[0].Quantity)
}

// Market orders with no opposite-side liquidity are rejected, not rested.
func TestAddOrder_MarketNoLiquidity(t *testing.T) {
	book := newTestBook(t)

	trades, err := book.AddOrder(1, common.Market, common.Buy, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 0, book.Size())
}

// S5 — Modify resets time priority to the tail of its new bucket.
func TestModifyOrder_LosesPriority(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)
	_, err = book.AddOrder(2, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)

	_, err = book.ModifyOrder(1, common.Buy, 100, 5)
	require.NoError(t, err)

	trades, err := book.AddOrder(3, common.GoodTillCancel, common.Sell, 100, 5)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, common.OrderId(2), trades[0].Bid.OrderID, "id 2 kept its place after id 1 was re-queued behind it")
}

// Duplicate ids are a silent no-op.
func TestAddOrder_DuplicateID(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)

	trades, err := book.AddOrder(1, common.GoodTillCancel, common.Buy, 101, 5)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 1, book.Size())

	snapshot := book.GetLevelInfos()
	require.Len(t, snapshot.Bids, 1)
	assert.Equal(t, common.Price(100), snapshot.Bids[0].Price, "the duplicate must not overwrite the original price")
}

// Cancelling a just-added non-crossing order restores the book to its
// pre-add state.
func TestCancelOrder_RestoresPreAddState(t *testing.T) {
	book := newTestBook(t)

	before := book.GetLevelInfos()
	beforeSize := book.Size()

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)

	book.CancelOrder(1)

	assert.Equal(t, beforeSize, book.Size())
	assert.Equal(t, before, book.GetLevelInfos())
}

// Cancelling an unknown id is a silent no-op.
func TestCancelOrder_UnknownID(t *testing.T) {
	book := newTestBook(t)
	assert.NotPanics(t, func() { book.CancelOrder(999) })
	assert.Equal(t, 0, book.Size())
}

// ModifyOrder on an unknown id produces no trades and no state change.
func TestModifyOrder_UnknownID(t *testing.T) {
	book := newTestBook(t)
	trades, err := book.ModifyOrder(999, common.Buy, 100, 5)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

// Cross-side invariant: once both sides are populated by a crossing add, the
// resulting book never leaves bestBid >= bestAsk.
func TestInvariant_NoResidualCross(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Sell, 100, 5)
	require.NoError(t, err)
	_, err = book.AddOrder(3, common.GoodTillCancel, common.Buy, 99, 1)
	require.NoError(t, err)
	_, err = book.AddOrder(2, common.GoodTillCancel, common.Buy, 105, 3)
	require.NoError(t, err)

	snapshot := book.GetLevelInfos()
	if len(snapshot.Bids) > 0 && len(snapshot.Asks) > 0 {
		assert.Less(t, snapshot.Bids[0].Price, snapshot.Asks[0].Price)
	}
}

// levelData aggregates stay in lockstep with resting quantity across partial
// fills, not just full ones.
func TestLevelData_TracksPartialFill(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Sell, 100, 10)
	require.NoError(t, err)

	trades, err := book.AddOrder(2, common.GoodTillCancel, common.Buy, 100, 4)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	snapshot := book.GetLevelInfos()
	require.Len(t, snapshot.Asks, 1)
	assert.Equal(t, common.Quantity(6), snapshot.Asks[0].Quantity)
}

// Reporter is notified once per trade produced by a crossing admission.
func TestAddOrder_ReportsTrades(t *testing.T) {
	book := newTestBook(t)
	reporter := &noopReporter{}
	book.SetReporter(reporter)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Sell, 100, 5)
	require.NoError(t, err)
	_, err = book.AddOrder(2, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)

	require.Len(t, reporter.trades, 1)
	assert.NoError(t, reporter.errs[0])
}
