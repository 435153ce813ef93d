// Package engine implements the matching core: a single-instrument,
// price-time-priority order book, and a thin multi-instrument façade that
// routes requests to the right book.
package engine

import (
	"sync"

	"matchbook/internal/common"
)

// Engine owns one OrderBook per supported instrument. It performs no
// matching itself and never reaches across books in one operation — the
// only job it does is routing and Reporter wiring.
type Engine struct {
	mu    sync.RWMutex
	books map[common.AssetType]*OrderBook
}

// New constructs an Engine with one fresh, running OrderBook per asset.
func New(supportedAssets ...common.AssetType) *Engine {
	e := &Engine{books: make(map[common.AssetType]*OrderBook)}
	for _, assetType := range supportedAssets {
		e.books[assetType] = NewOrderBook()
	}
	return e
}

// Book returns the order book for assetType, if the engine was constructed
// with it.
func (e *Engine) Book(assetType common.AssetType) (*OrderBook, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[assetType]
	return b, ok
}

// SetReporter installs r on every book this engine owns.
func (e *Engine) SetReporter(r Reporter) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, b := range e.books {
		b.SetReporter(r)
	}
}

// Shutdown stops every book's pruner and waits for them to exit.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, b := range e.books {
		b.Close()
	}
}
