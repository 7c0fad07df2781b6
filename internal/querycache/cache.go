// Package querycache is the client's request cache: a keyed store of
// asynchronously fetched values shared by every command and view.
//
// WHAT THE CACHE GUARANTEES:
//   - Coalescing: concurrent reads of one key share a single in-flight fetch.
//   - Staleness: a value younger than the stale time is served without a
//     network call.
//   - Stale-while-revalidate: invalidation keeps the old value visible until
//     the refetch resolves.
//   - Last-non-cancelled-write-wins: a cancelled or superseded fetch never
//     writes into its entry, whatever order responses arrive in.
//
// The cache is an ordinary value built by New. There is no package-level
// instance; the composition root owns one and clears it on logout.
//
// LOCKING:
// One mutex guards every entry. Fetch functions run in their own goroutines
// without the lock, and listeners are always called after it is released.
package querycache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Defaults used by DefaultOptions.
const (
	DefaultGCTime     = 5 * time.Minute
	DefaultRetry      = 1
	DefaultRetryDelay = 300 * time.Millisecond
)

// Options configure a Cache. Per-query overrides are passed as QueryOption.
type Options struct {
	// StaleTime is how long a successful value is served without refetching.
	// Zero means every Fetch or Observe revalidates.
	StaleTime time.Duration
	// GCTime is how long an unobserved, idle entry is kept. Zero selects
	// DefaultGCTime; a negative value disables eviction.
	GCTime time.Duration
	// Retry is the number of automatic retries of a failed fetch. Zero
	// disables retrying.
	Retry int
	// RetryDelay is the pause before a retry.
	RetryDelay time.Duration
}

// DefaultOptions returns the options the application runs with.
func DefaultOptions() Options {
	return Options{
		GCTime:     DefaultGCTime,
		Retry:      DefaultRetry,
		RetryDelay: DefaultRetryDelay,
	}
}

// FetchFunc loads the value for one key. It must honour ctx cancellation.
type FetchFunc func(ctx context.Context) (any, error)

// Listener receives every state change of an observed entry.
type Listener func(Snapshot)

type QueryOption func(*entry)

// WithStaleTime overrides Options.StaleTime for one key.
func WithStaleTime(d time.Duration) QueryOption {
	return func(e *entry) { e.staleTime = d }
}

// WithRetry overrides Options.Retry for one key.
func WithRetry(n int) QueryOption {
	return func(e *entry) { e.retry = n }
}

// ErrCancelled is returned to a waiter whose fetch was cancelled before any
// value was cached for the key.
var ErrCancelled = errors.New("querycache: fetch cancelled")

// Cache is safe for concurrent use.
type Cache struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	nextID  int
}

// New creates an empty cache.
func New(opts Options, logger *slog.Logger) *Cache {
	if opts.GCTime == 0 {
		opts.GCTime = DefaultGCTime
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// =========================================================================
// READS
// =========================================================================

// Read returns the current state of key without blocking. When the entry is
// missing, stale or invalidated and nothing is in flight, a background fetch
// starts and the returned snapshot reports Fetching. A missing entry is
// returned as StatusPending.
func (c *Cache) Read(key Key, fetch FetchFunc, opts ...QueryOption) Snapshot {
	c.mu.Lock()
	e := c.entryLocked(key, fetch, opts)
	started := false
	if e.inflight == nil && e.stale(time.Now()) && e.fetch != nil {
		c.startLocked(e, e.fetch)
		started = true
	}
	snap := e.snapshot(time.Now())
	var ls []Listener
	if started {
		ls = e.listeners()
	}
	c.mu.Unlock()

	notify(ls, snap)
	return snap
}

// Fetch returns the value for key, blocking until it is available. A fresh
// cached value is returned without a network call; otherwise the caller
// joins the in-flight fetch or starts one.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch FetchFunc, opts ...QueryOption) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key, fetch, opts)
	if !e.stale(time.Now()) {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}

	cl := e.inflight
	var ls []Listener
	if cl == nil {
		if e.fetch == nil {
			c.mu.Unlock()
			return nil, errors.New("querycache: no fetch function for " + key.String())
		}
		cl = c.startLocked(e, e.fetch)
		ls = e.listeners()
	}
	cl.waiters++
	snap := e.snapshot(time.Now())
	c.mu.Unlock()

	notify(ls, snap)
	return c.wait(ctx, e, cl)
}

// Observe subscribes listener to key. The listener is called once with the
// current state and again on every change. Observing a stale entry starts a
// fetch. The returned stop function unsubscribes; stopping the last observer
// cancels an in-flight fetch nobody else is waiting for.
func (c *Cache) Observe(key Key, fetch FetchFunc, listener Listener, opts ...QueryOption) (stop func()) {
	c.mu.Lock()
	e := c.entryLocked(key, fetch, opts)
	c.nextID++
	id := c.nextID
	e.observers[id] = listener
	e.stopGC()
	if e.inflight == nil && e.stale(time.Now()) && e.fetch != nil {
		c.startLocked(e, e.fetch)
	}
	snap := e.snapshot(time.Now())
	c.mu.Unlock()

	listener(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(e.observers, id)
			if len(e.observers) > 0 {
				return
			}
			if cl := e.inflight; cl != nil && cl.waiters == 0 {
				c.cancelLocked(e, cl)
			}
			c.scheduleGCLocked(e)
		})
	}
}

// Get returns the cached value of key, if any.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Snapshot returns the state of key without starting a fetch.
func (c *Cache) Snapshot(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(time.Now()), true
}

// Keys lists every cached key starting with prefix, in canonical order.
func (c *Cache) Keys(prefix Key) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []Key
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			keys = append(keys, e.key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// =========================================================================
// WRITES
// =========================================================================

// Write replaces the value of key without a network call. The entry becomes
// fresh, as if it had just been fetched.
func (c *Cache) Write(key Key, value any) {
	c.mu.Lock()
	e := c.entryLocked(key, nil, nil)
	c.setLocked(e, value)
	ls, snap := e.listeners(), e.snapshot(time.Now())
	c.mu.Unlock()

	notify(ls, snap)
}

// Update atomically rewrites the value of key. fn receives the current value
// (ok=false when there is none) and returns the new value and whether to
// store it. Update reports whether a value was written.
func (c *Cache) Update(key Key, fn func(old any, ok bool) (any, bool)) bool {
	c.mu.Lock()
	e, exists := c.entries[key.String()]
	var old any
	hasOld := exists && e.hasValue
	if hasOld {
		old = e.value
	}
	v, write := fn(old, hasOld)
	if !write {
		c.mu.Unlock()
		return false
	}
	if !exists {
		e = c.entryLocked(key, nil, nil)
	}
	c.setLocked(e, v)
	ls, snap := e.listeners(), e.snapshot(time.Now())
	c.mu.Unlock()

	notify(ls, snap)
	return true
}

// Remove drops key, cancelling its in-flight fetch. Observers are told the
// entry is gone with an empty pending snapshot.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.dropLocked(e)
	ls := e.listeners()
	c.mu.Unlock()

	notify(ls, Snapshot{Key: key, Status: StatusPending})
}

// Clear drops every entry. It is called on logout and account deletion.
func (c *Cache) Clear() {
	c.mu.Lock()
	type gone struct {
		key Key
		ls  []Listener
	}
	var dropped []gone
	for _, e := range c.entries {
		c.dropLocked(e)
		if ls := e.listeners(); len(ls) > 0 {
			dropped = append(dropped, gone{e.key, ls})
		}
	}
	c.mu.Unlock()

	c.logger.Debug("cache cleared")
	for _, g := range dropped {
		notify(g.ls, Snapshot{Key: g.key, Status: StatusPending})
	}
}

// Cancel aborts the in-flight fetch of every key starting with prefix. The
// cancelled fetches never write into the cache; cached values stay as they
// are.
func (c *Cache) Cancel(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if cl := e.inflight; cl != nil && e.key.HasPrefix(prefix) {
			c.cancelLocked(e, cl)
			c.scheduleGCLocked(e)
		}
	}
}

// Invalidate marks every entry under prefix stale. Entries that are observed
// or being fetched are refetched right away, superseding any older in-flight
// call; the rest refetch on their next read. The previous value stays
// visible until the refetch resolves.
//
// Invalidate waits for the refetches it started and returns their errors
// joined. Invalidating a prefix with no entries does nothing.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) error {
	type pending struct {
		e  *entry
		cl *call
	}

	c.mu.Lock()
	var waits []pending
	type change struct {
		ls   []Listener
		snap Snapshot
	}
	var changes []change
	now := time.Now()
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		if e.fetch == nil || (len(e.observers) == 0 && e.inflight == nil) {
			continue
		}
		cl := c.refetchLocked(e)
		cl.waiters++
		waits = append(waits, pending{e, cl})
		changes = append(changes, change{e.listeners(), e.snapshot(now)})
	}
	c.mu.Unlock()

	if len(waits) > 0 {
		c.logger.Debug("cache invalidated",
			slog.String("prefix", prefix.String()),
			slog.Int("refetching", len(waits)),
		)
	}
	for _, ch := range changes {
		notify(ch.ls, ch.snap)
	}

	var errs []error
	for _, w := range waits {
		if _, err := c.wait(ctx, w.e, w.cl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =========================================================================
// INTERNALS
// =========================================================================

// extend runs fn as the in-flight call of an existing key unless a call is
// already running, in which case it returns the cached value untouched.
// The infinite variant uses it to load one more page.
func (c *Cache) extend(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || e.inflight != nil {
		var v any
		if ok {
			v = e.value
		}
		c.mu.Unlock()
		return v, nil
	}
	cl := c.startLocked(e, fn)
	cl.waiters++
	ls, snap := e.listeners(), e.snapshot(time.Now())
	c.mu.Unlock()

	notify(ls, snap)
	return c.wait(ctx, e, cl)
}

func (c *Cache) entryLocked(key Key, fetch FetchFunc, opts []QueryOption) *entry {
	h := key.String()
	e, ok := c.entries[h]
	if !ok {
		e = &entry{
			key:       append(Key(nil), key...),
			hash:      h,
			status:    StatusPending,
			staleTime: c.opts.StaleTime,
			retry:     c.opts.Retry,
			observers: make(map[int]Listener),
		}
		c.entries[h] = e
	}
	if fetch != nil {
		e.fetch = fetch
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (c *Cache) setLocked(e *entry, v any) {
	now := time.Now()
	e.value = v
	e.hasValue = true
	e.status = StatusSuccess
	e.err = nil
	e.fetchedAt = now
	e.staleAfter = now.Add(e.staleTime)
	e.invalidated = false
	c.scheduleGCLocked(e)
}

// startLocked launches fn for e and makes it the entry's in-flight call.
func (c *Cache) startLocked(e *entry, fn FetchFunc) *call {
	ctx, cancel := context.WithCancel(context.Background())
	cl := &call{done: make(chan struct{}), cancel: cancel}
	e.inflight = cl
	e.stopGC()

	retry, delay := e.retry, c.opts.RetryDelay
	c.logger.Debug("cache fetch started", slog.String("key", e.hash))

	go func() {
		v, err := run(ctx, fn, retry, delay)
		c.finish(e, cl, v, err)
	}()
	return cl
}

// refetchLocked starts a new call for e, superseding the current one. Waiters
// of the old call move over to the new one.
func (c *Cache) refetchLocked(e *entry) *call {
	old := e.inflight
	cl := c.startLocked(e, e.fetch)
	if old != nil {
		old.next = cl
		cl.waiters += old.waiters
		old.cancelled = true
		old.cancel()
		old.close()
	}
	return cl
}

func (c *Cache) cancelLocked(e *entry, cl *call) {
	cl.cancelled = true
	cl.cancel()
	cl.close()
	if e.inflight == cl {
		e.inflight = nil
	}
}

func (c *Cache) dropLocked(e *entry) {
	if cl := e.inflight; cl != nil {
		c.cancelLocked(e, cl)
	}
	e.stopGC()
	if c.entries[e.hash] == e {
		delete(c.entries, e.hash)
	}
}

// finish applies a completed fetch. Results of cancelled or superseded calls
// are discarded.
func (c *Cache) finish(e *entry, cl *call, v any, err error) {
	c.mu.Lock()
	cl.value, cl.err = v, err
	if cl.cancelled || e.inflight != cl {
		c.mu.Unlock()
		cl.close()
		return
	}

	e.inflight = nil
	if err != nil {
		e.status = StatusError
		e.err = err
		c.scheduleGCLocked(e)
	} else {
		c.setLocked(e, v)
	}
	ls, snap := e.listeners(), e.snapshot(time.Now())
	c.mu.Unlock()

	cl.close()
	notify(ls, snap)
}

// wait blocks until cl resolves, following supersession to newer calls.
func (c *Cache) wait(ctx context.Context, e *entry, cl *call) (any, error) {
	for {
		select {
		case <-cl.done:
			c.mu.Lock()
			if cl.next != nil {
				cl = cl.next
				c.mu.Unlock()
				continue
			}
			if cl.cancelled {
				v, ok, err := e.value, e.hasValue, e.err
				c.mu.Unlock()
				if ok && err == nil {
					return v, nil
				}
				return nil, ErrCancelled
			}
			v, err := cl.value, cl.err
			c.mu.Unlock()
			return v, err

		case <-ctx.Done():
			c.mu.Lock()
			for cl.next != nil {
				cl = cl.next
			}
			cl.waiters--
			if cl.waiters <= 0 && len(e.observers) == 0 && e.inflight == cl {
				c.cancelLocked(e, cl)
				c.scheduleGCLocked(e)
			}
			c.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

func (c *Cache) scheduleGCLocked(e *entry) {
	if c.opts.GCTime < 0 || len(e.observers) > 0 || e.inflight != nil {
		return
	}
	e.stopGC()
	e.gcTimer = time.AfterFunc(c.opts.GCTime, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.entries[e.hash] == e && len(e.observers) == 0 && e.inflight == nil {
			delete(c.entries, e.hash)
			c.logger.Debug("cache entry evicted", slog.String("key", e.hash))
		}
	})
}

// run calls fn, retrying up to retry times unless ctx is cancelled.
func run(ctx context.Context, fn FetchFunc, retry int, delay time.Duration) (any, error) {
	v, err := fn(ctx)
	for attempt := 0; err != nil && attempt < retry; attempt++ {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return v, err
		}
		v, err = fn(ctx)
	}
	return v, err
}

func notify(ls []Listener, snap Snapshot) {
	for _, l := range ls {
		l(snap)
	}
}
