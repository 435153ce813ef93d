package engine

import (
	"time"

	"matchbook/internal/common"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// sessionCutoffHour/Minute is the local wall-clock time at which resting
// GoodForDay orders expire.
const (
	sessionCutoffHour   = 16
	sessionCutoffMinute = 0

	// prunerSlack pads the computed deadline so a wake that lands exactly
	// on the cutoff (clock skew, scheduling jitter) still sees every order
	// admitted right up to it.
	prunerSlack = 100 * time.Millisecond
)

// pruner is the book's background GoodForDay expiry task. It plays the role
// spec.md assigns to a condition variable paired with the book's mutex: a
// tomb.Tomb's Dying() channel selected against a deadline timer is this
// repository's channel-based substitute for condition_variable::wait_until,
// sanctioned as an equivalent by the design notes this book follows.
type pruner struct {
	t *tomb.Tomb
}

func startPruner(b *OrderBook) *pruner {
	p := &pruner{t: new(tomb.Tomb)}
	p.t.Go(func() error {
		p.run(b)
		return nil
	})
	return p
}

func (p *pruner) run(b *OrderBook) {
	for {
		deadline := nextCutoff(time.Now())
		timer := time.NewTimer(time.Until(deadline) + prunerSlack)

		select {
		case <-p.t.Dying():
			timer.Stop()
			return
		case <-timer.C:
			b.pruneGoodForDay()
		}
	}
}

// shutdown signals the pruner to stop and blocks until it has exited.
func (p *pruner) shutdown() {
	p.t.Kill(nil)
	_ = p.t.Wait()
}

// pruneGoodForDay collects every resting GoodForDay order and cancels all of
// them under a single mutex acquisition.
func (b *OrderBook) pruneGoodForDay() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expired []common.OrderId
	for id, o := range b.orderIndex {
		if o.orderType == common.GoodForDay {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return
	}

	b.batchCancelLocked(expired)
	log.Info().Int("count", len(expired)).Msg("pruned expired good-for-day orders")
}

// nextCutoff returns the next occurrence, strictly after now, of the daily
// session cutoff in now's location.
func nextCutoff(now time.Time) time.Time {
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), sessionCutoffHour, sessionCutoffMinute, 0, 0, now.Location())
	if !cutoff.After(now) {
		cutoff = cutoff.Add(24 * time.Hour)
	}
	return cutoff
}
