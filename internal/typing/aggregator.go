// Package typing tracks which users currently have an active typing indicator.
package typing

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"chatrelay/pkg/types"
)

type entry struct {
	connID types.ConnectionID
	name   string
	seen   time.Time
}

// Aggregator is the set of typing connections, kept in the order they
// started typing.
type Aggregator struct {
	mu      sync.Mutex
	entries []entry
}

// NewAggregator creates an empty typing set.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Set marks connID as typing. A connection already typing keeps its position
// and only has its idle clock refreshed. It reports whether the snapshot changed.
func (a *Aggregator) Set(connID types.ConnectionID, name string, at time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, i, found := lo.FindIndexOf(a.entries, func(e entry) bool { return e.connID == connID }); found {
		a.entries[i].seen = at
		return false
	}

	a.entries = append(a.entries, entry{connID: connID, name: name, seen: at})
	return true
}

// Clear removes connID from the set. It reports whether the snapshot changed.
func (a *Aggregator) Clear(connID types.ConnectionID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := len(a.entries)
	a.entries = lo.Reject(a.entries, func(e entry, _ int) bool { return e.connID == connID })
	return len(a.entries) != before
}

// Snapshot returns the display names currently typing, in insertion order.
func (a *Aggregator) Snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return lo.Map(a.entries, func(e entry, _ int) string { return e.name })
}

// Expire drops every entry last refreshed more than timeout before now and
// returns the connections it dropped.
func (a *Aggregator) Expire(now time.Time, timeout time.Duration) []types.ConnectionID {
	a.mu.Lock()
	defer a.mu.Unlock()

	stale, fresh := lo.FilterReject(a.entries, func(e entry, _ int) bool {
		return now.Sub(e.seen) > timeout
	})
	a.entries = fresh

	return lo.Map(stale, func(e entry, _ int) types.ConnectionID { return e.connID })
}
