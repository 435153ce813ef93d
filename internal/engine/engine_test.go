package engine

import (
	"testing"

	"matchbook/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_RoutesToConstructedBooks(t *testing.T) {
	e := New(common.Equities)
	defer e.Shutdown()

	book, ok := e.Book(common.Equities)
	require.True(t, ok)
	require.NotNil(t, book)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, book.Size())
}

func TestEngine_UnknownAssetType(t *testing.T) {
	e := New(common.Equities)
	defer e.Shutdown()

	unknown := common.AssetType(99)
	_, ok := e.Book(unknown)
	assert.False(t, ok)
}

func TestEngine_SetReporterAppliesToEveryBook(t *testing.T) {
	e := New(common.Equities)
	defer e.Shutdown()

	reporter := &noopReporter{}
	e.SetReporter(reporter)

	book, ok := e.Book(common.Equities)
	require.True(t, ok)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Sell, 100, 5)
	require.NoError(t, err)
	_, err = book.AddOrder(2, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)

	assert.Len(t, reporter.trades, 1)
}
