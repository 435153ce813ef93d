package engine

import (
	"testing"
	"time"

	"matchbook/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S6 — GoodForDay pruning. The pruner's timer loop is exercised indirectly
// via startPruner in every other test's NewOrderBook/Close; here we drive
// the cancellation logic directly, since waiting on a real wall-clock
// cutoff would make the suite flaky.
func TestPruneGoodForDay_CancelsOnlyGoodForDay(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodForDay, common.Buy, 100, 5)
	require.NoError(t, err)
	_, err = book.AddOrder(2, common.GoodTillCancel, common.Buy, 99, 5)
	require.NoError(t, err)

	book.pruneGoodForDay()

	assert.Equal(t, 1, book.Size(), "only the GoodTillCancel order should survive pruning")
	snapshot := book.GetLevelInfos()
	require.Len(t, snapshot.Bids, 1)
	assert.Equal(t, common.Price(99), snapshot.Bids[0].Price)
}

func TestPruneGoodForDay_NoExpiredOrdersIsNoop(t *testing.T) {
	book := newTestBook(t)

	_, err := book.AddOrder(1, common.GoodTillCancel, common.Buy, 100, 5)
	require.NoError(t, err)

	book.pruneGoodForDay()

	assert.Equal(t, 1, book.Size())
}

func TestNextCutoff_SameDayBeforeCutoff(t *testing.T) {
	now := time.Date(2026, 8, 6, 10, 0, 0, 0, time.Local)
	cutoff := nextCutoff(now)
	assert.Equal(t, time.Date(2026, 8, 6, sessionCutoffHour, sessionCutoffMinute, 0, 0, time.Local), cutoff)
}

func TestNextCutoff_RollsOverAfterCutoff(t *testing.T) {
	now := time.Date(2026, 8, 6, 17, 0, 0, 0, time.Local)
	cutoff := nextCutoff(now)
	assert.Equal(t, time.Date(2026, 8, 7, sessionCutoffHour, sessionCutoffMinute, 0, 0, time.Local), cutoff)
}

func TestPrunerShutdown_StopsCleanly(t *testing.T) {
	book := NewOrderBook()
	assert.NotPanics(t, func() { book.Close() })
}
