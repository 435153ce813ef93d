package engine

import "matchbook/internal/common"

// Reporter receives notifications of book activity. An embedding process
// implements it to forward execution reports to counterparties and surface
// delivery failures; the matching core itself never inspects the result.
type Reporter interface {
	// ReportTrade is called once per trade produced by a crossing, in the
	// order the trades were produced. err carries a delivery-side failure
	// (e.g. a dead client session), not a defect in the trade itself —
	// every trade handed to ReportTrade is already valid and committed.
	ReportTrade(trade common.Trade, err error) error
	// ReportError notifies the given order owner of an out-of-band error
	// unrelated to a specific trade.
	ReportError(owner string, err error) error
}
