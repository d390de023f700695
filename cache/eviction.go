package cache

import (
	"context"
	"time"

	"github.com/jonwraymond/staffcache/observe"
)

// DefaultSweepInterval is how often each namespace removes expired entries.
const DefaultSweepInterval = 60 * time.Second

// trimLocked removes least recently used entries until the namespace holds at
// most MaxEntries. In-flight calls are kept in a separate map and survive.
func (n *Namespace[T]) trimLocked() int {
	over := len(n.entries) - n.policy.MaxEntries
	if over <= 0 {
		return 0
	}
	for _, key := range n.lruOrderLocked()[:over] {
		n.dropLocked(key)
	}
	return over
}

func (n *Namespace[T]) reportTrim(ctx context.Context, evicted int) {
	if evicted == 0 {
		return
	}
	n.evictions.Add(int64(evicted))
	n.m.metrics.RecordEviction(ctx, n.name, "lru", evicted)
	n.logger.Debug(ctx, "trimmed least recently used entries", observe.F("evicted", evicted))
}

// Sweep removes expired entries and stale access records, returning the number
// of entries removed.
func (n *Namespace[T]) Sweep() int {
	now := n.m.clock.Now()
	removed := 0

	n.mu.Lock()
	for key, e := range n.entries {
		if n.policy.Classify(e.fetchedAt, now) == Expired {
			n.dropLocked(key)
			removed++
		}
	}
	// Access records without an entry are left by blocked callers whose fetch
	// is still running or was invalidated.
	for key, rec := range n.access {
		if _, ok := n.entries[key]; ok {
			continue
		}
		if _, ok := n.inflight[key]; ok {
			continue
		}
		if now.Sub(rec.at) > n.policy.ExpireAfter {
			delete(n.access, key)
		}
	}
	n.mu.Unlock()

	if removed > 0 {
		ctx := context.Background()
		n.evictions.Add(int64(removed))
		n.m.metrics.RecordEviction(ctx, n.name, "expired", removed)
		n.logger.Debug(ctx, "swept expired entries", observe.F("removed", removed))
	}
	return removed
}

func (n *Namespace[T]) sweepLoop(interval time.Duration) {
	defer close(n.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.Sweep()
		}
	}
}
