package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/staffcache/observe"
)

// entry is the last successfully fetched value for one key.
type entry[T any] struct {
	data      T
	fetchedAt time.Time
}

// accessRecord ranks keys for LRU trimming. seq is strictly increasing per
// namespace, so ties in wall-clock time still order correctly.
type accessRecord struct {
	at  time.Time
	seq uint64
}

// call is the shared future for one in-flight fetch. val and err are written
// before done is closed.
type call[T any] struct {
	done chan struct{}
	kind string
	val  T
	err  error
}

// NamespaceStats is a point-in-time snapshot of one namespace.
type NamespaceStats struct {
	Name       string
	Policy     Policy
	Entries    int
	InFlight   int
	Loading    bool
	Hits       int64
	StaleHits  int64
	Misses     int64
	Evictions  int64
	LastOK     time.Time
	LastErr    string
	LastErrAt  time.Time
	SweepEvery time.Duration

	// Failing counts cached keys whose latest refresh failed and that have
	// not been fetched successfully since.
	Failing int
}

// RefreshFailing reports whether any cached key is being served from data
// its latest refresh failed to replace.
func (s NamespaceStats) RefreshFailing() bool {
	return s.Failing > 0
}

// Namespace is a handle to one logical cache partition holding values of type T.
//
// Contract:
// - Concurrency: all methods are safe for concurrent use.
// - Dedup: at most one fetch per key is in flight at any time.
// - Errors: only GetData surfaces fetch errors; background paths log them.
type Namespace[T any] struct {
	name   string
	policy Policy
	fetch  FetchFunc[T]
	m      *Manager
	logger observe.Logger

	mu        sync.Mutex
	entries   map[string]*entry[T]
	access    map[string]accessRecord
	inflight  map[string]*call[T]
	failing   map[string]struct{}
	seq       uint64
	lastOK    time.Time
	lastErr   error
	lastErrAt time.Time

	loading   atomic.Int64
	hits      atomic.Int64
	staleHits atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	stop      chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

func newNamespace[T any](m *Manager, name string, fetch FetchFunc[T], policy Policy) *Namespace[T] {
	n := &Namespace[T]{
		name:      name,
		policy:    policy,
		fetch:     fetch,
		m:         m,
		logger:    m.logger.With(observe.F("namespace", name)),
		entries:   make(map[string]*entry[T]),
		access:    make(map[string]accessRecord),
		inflight:  make(map[string]*call[T]),
		failing:   make(map[string]struct{}),
		stop:      make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	if m.sweepInterval > 0 {
		go n.sweepLoop(m.sweepInterval)
	} else {
		close(n.sweepDone)
	}
	return n
}

// Name returns the namespace name.
func (n *Namespace[T]) Name() string {
	return n.name
}

// Policy returns the effective policy, defaults applied.
func (n *Namespace[T]) Policy() Policy {
	return n.policy
}

// GetData returns the value for args.
//
// Fresh entries are returned directly. Stale entries are returned directly and
// a detached revalidation is started unless one is already in flight. Missing
// or expired entries block on a fetch, shared with any concurrent caller for
// the same key. If ctx ends while waiting, GetData returns ctx.Err() and the
// fetch keeps running.
func (n *Namespace[T]) GetData(ctx context.Context, args ...any) (T, error) {
	var zero T
	key, err := n.m.keyer.Key(args...)
	if err != nil {
		return zero, err
	}
	now := n.m.clock.Now()

	n.mu.Lock()
	n.touchLocked(key, now)
	freshness := Expired
	e := n.entries[key]
	if e != nil {
		freshness = n.policy.Classify(e.fetchedAt, now)
	}

	switch freshness {
	case Fresh:
		data := e.data
		n.mu.Unlock()
		n.hits.Add(1)
		n.m.metrics.RecordLookup(ctx, n.name, freshness.String())
		return data, nil

	case Stale:
		if n.inflight[key] == nil {
			n.startLocked(ctx, key, args, observe.KindRevalidate)
		}
		data := e.data
		n.mu.Unlock()
		n.staleHits.Add(1)
		n.m.metrics.RecordLookup(ctx, n.name, freshness.String())
		return data, nil
	}

	// Check and install happen under one critical section.
	c := n.inflight[key]
	if c == nil {
		c = n.startLocked(ctx, key, args, observe.KindBlocking)
	}
	n.mu.Unlock()
	n.misses.Add(1)
	n.m.metrics.RecordLookup(ctx, n.name, freshness.String())

	return n.wait(ctx, c)
}

// Prefetch starts a detached fetch for args unless the entry is fresh or a
// fetch is already in flight. It never blocks.
func (n *Namespace[T]) Prefetch(ctx context.Context, args ...any) {
	key, err := n.m.keyer.Key(args...)
	if err != nil {
		n.logger.Warn(ctx, "prefetch skipped", observe.F("error", err))
		return
	}
	now := n.m.clock.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.inflight[key] != nil {
		return
	}
	if e := n.entries[key]; e != nil && n.policy.Classify(e.fetchedAt, now) == Fresh {
		return
	}
	n.startLocked(ctx, key, args, observe.KindPrefetch)
}

// Put stores data for args with a fresh timestamp, bypassing the fetch
// function, then trims the namespace.
func (n *Namespace[T]) Put(ctx context.Context, data T, args ...any) error {
	key, err := n.m.keyer.Key(args...)
	if err != nil {
		return err
	}
	now := n.m.clock.Now()

	n.mu.Lock()
	n.storeLocked(key, data, now)
	evicted := n.trimLocked()
	n.mu.Unlock()

	n.reportTrim(ctx, evicted)
	return nil
}

// Load calls fetch directly and stores the result with Put. It bypasses
// in-flight dedup and is meant for warm-up before callers arrive. A nil fetch
// uses the namespace's own fetch function. The error is returned, not cached.
func (n *Namespace[T]) Load(ctx context.Context, fetch FetchFunc[T], args ...any) error {
	if fetch == nil {
		fetch = n.fetch
	}
	key, err := n.m.keyer.Key(args...)
	if err != nil {
		return err
	}

	var val T
	meta := observe.FetchMeta{Namespace: n.name, Key: key, Kind: observe.KindPreload}
	err = n.m.mw.Run(ctx, meta, func(ctx context.Context) (ferr error) {
		defer func() {
			if r := recover(); r != nil {
				ferr = fmt.Errorf("%w: %v", ErrFetchPanic, r)
			}
		}()
		val, ferr = fetch(ctx, args...)
		return ferr
	})
	if err != nil {
		return err
	}
	return n.Put(ctx, val, args...)
}

// Peek returns the cached value for args and its freshness without touching
// the access record or starting a fetch.
func (n *Namespace[T]) Peek(args ...any) (T, Freshness, bool) {
	var zero T
	key, err := n.m.keyer.Key(args...)
	if err != nil {
		return zero, Expired, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	e := n.entries[key]
	if e == nil {
		return zero, Expired, false
	}
	return e.data, n.policy.Classify(e.fetchedAt, n.m.clock.Now()), true
}

// Invalidate removes the entry for args, or every entry when args is empty.
// Access records go with their entries. In-flight fetches are not cancelled:
// a fetch that completes after invalidation repopulates its entry.
func (n *Namespace[T]) Invalidate(args ...any) error {
	if len(args) == 0 {
		n.mu.Lock()
		removed := len(n.entries)
		n.entries = make(map[string]*entry[T])
		n.access = make(map[string]accessRecord)
		n.failing = make(map[string]struct{})
		n.mu.Unlock()

		n.evictions.Add(int64(removed))
		n.m.metrics.RecordEviction(context.Background(), n.name, "invalidated", removed)
		return nil
	}

	key, err := n.m.keyer.Key(args...)
	if err != nil {
		return err
	}

	n.mu.Lock()
	_, existed := n.entries[key]
	n.dropLocked(key)
	n.mu.Unlock()

	if existed {
		n.evictions.Add(1)
		n.m.metrics.RecordEviction(context.Background(), n.name, "invalidated", 1)
	}
	return nil
}

// IsLoading reports whether any caller is blocked in GetData waiting for a
// fetch. Background revalidations and prefetches do not count.
func (n *Namespace[T]) IsLoading() bool {
	return n.loading.Load() > 0
}

// Len returns the number of cached entries. In-flight fetches for keys with no
// entry yet are not counted.
func (n *Namespace[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

// Keys returns the cached keys, least recently used first.
func (n *Namespace[T]) Keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lruOrderLocked()
}

// Stats returns a snapshot of the namespace.
func (n *Namespace[T]) Stats() NamespaceStats {
	n.mu.Lock()
	s := NamespaceStats{
		Name:       n.name,
		Policy:     n.policy,
		Entries:    len(n.entries),
		InFlight:   len(n.inflight),
		LastOK:     n.lastOK,
		LastErrAt:  n.lastErrAt,
		SweepEvery: n.m.sweepInterval,
		Failing:    len(n.failing),
	}
	if n.lastErr != nil {
		s.LastErr = n.lastErr.Error()
	}
	n.mu.Unlock()

	s.Loading = n.IsLoading()
	s.Hits = n.hits.Load()
	s.StaleHits = n.staleHits.Load()
	s.Misses = n.misses.Load()
	s.Evictions = n.evictions.Load()
	return s
}

// Close stops the periodic sweep. Cached data stays readable. Close is idempotent.
func (n *Namespace[T]) Close() {
	n.closeOnce.Do(func() {
		close(n.stop)
	})
	<-n.sweepDone
}

func (n *Namespace[T]) touchLocked(key string, now time.Time) {
	n.seq++
	n.access[key] = accessRecord{at: now, seq: n.seq}
}

func (n *Namespace[T]) storeLocked(key string, data T, now time.Time) {
	n.entries[key] = &entry[T]{data: data, fetchedAt: now}
	n.touchLocked(key, now)
	n.lastOK = now
	delete(n.failing, key)
}

// dropLocked removes key's entry with its access record and failure mark.
func (n *Namespace[T]) dropLocked(key string) {
	delete(n.entries, key)
	delete(n.access, key)
	delete(n.failing, key)
}

// startLocked installs a call for key and runs the fetch on a tracked
// goroutine. The caller must hold n.mu and must have checked that no call is
// installed for key.
func (n *Namespace[T]) startLocked(ctx context.Context, key string, args []any, kind string) *call[T] {
	c := &call[T]{done: make(chan struct{}), kind: kind}
	n.inflight[key] = c

	args = append([]any(nil), args...)
	fetchCtx := context.WithoutCancel(ctx)
	n.m.tasks.Go(func() {
		n.run(fetchCtx, key, args, c)
	})
	return c
}

func (n *Namespace[T]) run(ctx context.Context, key string, args []any, c *call[T]) {
	meta := observe.FetchMeta{Namespace: n.name, Key: key, Kind: c.kind}

	var val T
	err := n.m.mw.Run(ctx, meta, func(ctx context.Context) error {
		var ferr error
		val, ferr = n.invoke(ctx, args)
		return ferr
	})

	n.complete(ctx, key, c, val, err)
}

// invoke calls the fetch function, converting a panic into ErrFetchPanic.
func (n *Namespace[T]) invoke(ctx context.Context, args []any) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
	}()
	return n.fetch(ctx, args...)
}

func (n *Namespace[T]) complete(ctx context.Context, key string, c *call[T], val T, err error) {
	now := n.m.clock.Now()
	evicted := 0

	n.mu.Lock()
	if n.inflight[key] == c {
		delete(n.inflight, key)
	}
	if err == nil {
		n.storeLocked(key, val, now)
		evicted = n.trimLocked()
	} else if c.kind == observe.KindBlocking {
		// Leave nothing behind so the next call retries from scratch.
		e := n.entries[key]
		if e == nil || n.policy.Classify(e.fetchedAt, now) == Expired {
			n.dropLocked(key)
		}
	} else {
		n.lastErr = err
		n.lastErrAt = now
		// Only a surviving entry means stale data is being served.
		if _, ok := n.entries[key]; ok {
			n.failing[key] = struct{}{}
		}
	}
	c.val, c.err = val, err
	n.mu.Unlock()
	close(c.done)

	n.reportTrim(ctx, evicted)
	if err == nil {
		return
	}
	if c.kind == observe.KindBlocking {
		n.logger.Debug(ctx, "fetch failed", observe.F("key", key), observe.F("error", err))
		return
	}
	n.logger.Warn(ctx, "background refresh failed, keeping cached data",
		observe.F("key", key),
		observe.F("kind", c.kind),
		observe.F("error", err),
	)
}

func (n *Namespace[T]) wait(ctx context.Context, c *call[T]) (T, error) {
	n.loading.Add(1)
	defer n.loading.Add(-1)

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// lruOrderLocked returns cached keys in ascending access order.
func (n *Namespace[T]) lruOrderLocked() []string {
	keys := make([]string, 0, len(n.entries))
	for k := range n.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return n.access[keys[i]].seq < n.access[keys[j]].seq
	})
	return keys
}
