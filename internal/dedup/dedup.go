// Package dedup collapses concurrent identical requests into one underlying
// call whose result every caller shares.
package dedup

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Stats is a snapshot of the deduplicator's counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Deduper shares in-flight fetches by key. The flight slot is cleared exactly
// once when the underlying call settles — singleflight guarantees that — so a
// caller arriving after settlement always starts a fresh fetch, and callers
// arriving during flight always join it. Forget is deliberately never called:
// forgetting mid-flight would reopen the race this type exists to close.
type Deduper struct {
	group  singleflight.Group
	calls  int64
	misses int64
}

// New returns an empty deduplicator.
func New() *Deduper {
	return &Deduper{}
}

// Do invokes fn under key, or joins an identical in-flight call. All callers
// for a key receive the same value (or the same error) from the single
// underlying invocation.
func (d *Deduper) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	atomic.AddInt64(&d.calls, 1)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		// Only the flight leader runs here, exactly once per flight.
		atomic.AddInt64(&d.misses, 1)
		return fn()
	})
	return v, err
}

// Stats reports how often callers shared a flight instead of starting one.
func (d *Deduper) Stats() Stats {
	calls := atomic.LoadInt64(&d.calls)
	misses := atomic.LoadInt64(&d.misses)
	hits := calls - misses
	rate := 0.0
	if calls > 0 {
		rate = float64(hits) / float64(calls)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}
