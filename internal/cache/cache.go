package cache

import (
	"context"
	"sync"
	"time"

	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

// Fetcher loads the authoritative value for one key from the server.
type Fetcher func(ctx context.Context) (interface{}, error)

// Options configure one entry. A zero StaleAfter keeps the entry's current
// staleness window (or the default for a new entry).
type Options struct {
	StaleAfter time.Duration
}

// RetryPolicy bounds refetch attempts for transient failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Result is what a read returns. Loading is true while a fetch for the key is
// in flight (for a populated entry that means a background revalidation).
type Result struct {
	Value   interface{}
	Loading bool
	Err     error
}

const defaultStaleAfter = 30 * time.Second

type entry struct {
	key        Key
	value      interface{}
	hasValue   bool
	fetchedAt  time.Time
	staleAfter time.Duration
	err        error
	fetcher    Fetcher
	inflight   chan struct{} // non-nil while a fetch runs, closed when it settles
	generation uint64        // bumped on invalidation; stale results check it
	readers    int
}

func (e *entry) stale() bool {
	return !e.hasValue || time.Since(e.fetchedAt) >= e.staleAfter
}

// Cache is the keyed store of server-derived data. A given key maps to at
// most one entry and at most one in-flight fetch; concurrent readers of the
// same key share that fetch instead of issuing duplicates.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	retry   RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	log     logger.Logger
}

func New(retry RetryPolicy, log logger.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		retry:   retry,
		sleep:   sleepContext,
		log:     log,
	}
}

// Get returns the cached value for key when present and fresh. A stale entry
// is served as-is while a background refetch runs. The very first read of a
// key blocks until the fetch settles.
func (c *Cache) Get(ctx context.Context, key Key, fetcher Fetcher, opts Options) Result {
	c.mu.Lock()
	e := c.ensureLocked(key)
	if fetcher != nil {
		e.fetcher = fetcher
	}
	if opts.StaleAfter > 0 {
		e.staleAfter = opts.StaleAfter
	}

	if e.hasValue {
		if e.stale() && e.inflight == nil && e.fetcher != nil {
			c.startFetchLocked(e)
		}
		res := Result{Value: e.value, Loading: e.inflight != nil}
		c.mu.Unlock()
		return res
	}

	if e.inflight == nil {
		if e.fetcher == nil {
			c.mu.Unlock()
			return Result{Loading: true}
		}
		c.startFetchLocked(e)
	}
	done := e.inflight
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return Result{Loading: true, Err: ctx.Err()}
	case <-done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.ID()]
	if !ok {
		// Purged while the fetch was in flight.
		return Result{Loading: true}
	}
	if e.hasValue {
		return Result{Value: e.value}
	}
	return Result{Loading: e.err == nil, Err: e.err}
}

// Peek returns the cached value without triggering any fetch.
func (c *Cache) Peek(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.ID()]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Set overwrites the entry directly. Used for optimistic application and for
// merging push-delivered data.
func (c *Cache) Set(key Key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.ensureLocked(key)
	e.value = value
	e.hasValue = true
	e.err = nil
	e.fetchedAt = time.Now()
}

// Delete removes the entry for key, if any.
func (c *Cache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.ID())
}

// Register records the fetcher and options for a key without reading it.
// The poller uses this so untouched keys can still refresh.
func (c *Cache) Register(key Key, fetcher Fetcher, opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.ensureLocked(key)
	e.fetcher = fetcher
	if opts.StaleAfter > 0 {
		e.staleAfter = opts.StaleAfter
	}
}

// Refresh triggers a background refetch for key if a fetcher is known and no
// fetch is already running.
func (c *Cache) Refresh(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.ID()]
	if !ok || e.fetcher == nil || e.inflight != nil {
		return
	}
	c.startFetchLocked(e)
}

// Invalidate marks every entry under prefix stale. Entries with active
// readers refetch immediately; at most one fetch per key is in flight no
// matter how often the key is invalidated.
func (c *Cache) Invalidate(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.generation++
		e.fetchedAt = time.Time{}
		if e.readers > 0 && e.fetcher != nil && e.inflight == nil {
			c.startFetchLocked(e)
		}
	}
}

// Subscribe marks key as having an active reader (a mounted view).
func (c *Cache) Subscribe(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(key).readers++
}

func (c *Cache) Unsubscribe(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.ID()]; ok && e.readers > 0 {
		e.readers--
	}
}

// KeysWithPrefix returns the keys of populated entries under prefix.
func (c *Cache) KeysWithPrefix(prefix Key) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []Key
	for _, e := range c.entries {
		if e.hasValue && e.key.HasPrefix(prefix) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// PurgeAll drops every entry. Called when the session they belong to ends.
func (c *Cache) PurgeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.log.Info("Cache purged")
}

func (c *Cache) ensureLocked(key Key) *entry {
	e, ok := c.entries[key.ID()]
	if !ok {
		e = &entry{key: key, staleAfter: defaultStaleAfter}
		c.entries[key.ID()] = e
	}
	return e
}

func (c *Cache) startFetchLocked(e *entry) {
	done := make(chan struct{})
	e.inflight = done
	gen := e.generation
	fetcher := e.fetcher
	go c.runFetch(e, gen, fetcher, done)
}

func (c *Cache) runFetch(e *entry, gen uint64, fetcher Fetcher, done chan struct{}) {
	value, err := c.fetchWithRetry(context.Background(), fetcher)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(done)

	if e.inflight == done {
		e.inflight = nil
	}

	// A result that lost a race with an invalidation is only applied when
	// someone is still reading the key.
	if gen != e.generation && e.readers == 0 {
		c.log.Debug("Discarding fetch result", "key", e.key.String())
		return
	}

	if err != nil {
		// Keep the last good value; readers see a background error flag.
		e.err = err
		c.log.Warn("Fetch failed", "key", e.key.String(), "error", err)
		return
	}

	e.value = value
	e.hasValue = true
	e.err = nil
	e.fetchedAt = time.Now()
}

func (c *Cache) fetchWithRetry(ctx context.Context, fetcher Fetcher) (interface{}, error) {
	attempts := c.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.BaseDelay << (attempt - 1)
			if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		value, err := fetcher(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
