package client

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the authoritative value for one entity key.
type FetchFunc[T any] func(ctx context.Context, key int64) (T, error)

// Cache is a keyed remote-entity cache shared by any number of UI
// subscribers. It serves stale-while-revalidate reads: a cached value comes
// back immediately, IsLoading tells the caller whether a refresh is running
// behind it, and OnData delivers the refreshed value to every subscriber.
//
// At most one fetch per key is in flight at a time — concurrent Get calls
// for the same key coalesce onto the single underlying request.
//
// Entries are never evicted. The entity set (polls, tables, attachments open
// in a session) is small and the cache dies with the process.
type Cache[T any] struct {
	fetch  FetchFunc[T]
	flight singleflight.Group

	mu       sync.Mutex
	entries  map[int64]*cacheEntry[T]
	dataSubs map[int64]map[int]func(T)
	loadSubs map[int64]map[int]func(bool)
	nextSub  int
}

type cacheEntry[T any] struct {
	data    T
	ok      bool // false until the first successful load
	loading bool
}

// NewCache creates a cache backed by the given fetcher.
func NewCache[T any](fetch FetchFunc[T]) *Cache[T] {
	return &Cache[T]{
		fetch:    fetch,
		entries:  make(map[int64]*cacheEntry[T]),
		dataSubs: make(map[int64]map[int]func(T)),
		loadSubs: make(map[int64]map[int]func(bool)),
	}
}

// Get returns the entity for key. With force false, a previously loaded
// value is returned without a network call. Otherwise the fetcher runs;
// concurrent callers for the same key await the same outcome.
func (c *Cache[T]) Get(ctx context.Context, key int64, force bool) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.ok && !force {
		v := e.data
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(strconv.FormatInt(key, 10), func() (any, error) {
		c.setLoading(key, true)
		defer c.setLoading(key, false)

		data, err := c.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Set(key, data)
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Refresh forces a refetch and is the convergence point after mutations.
func (c *Cache[T]) Refresh(ctx context.Context, key int64) (T, error) {
	return c.Get(ctx, key, true)
}

// Peek returns the cached value without touching the network. Used together
// with IsLoading to show stale data while a refresh runs.
func (c *Cache[T]) Peek(key int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.ok {
		return e.data, true
	}
	var zero T
	return zero, false
}

// IsLoading reports whether a fetch for key is in flight.
func (c *Cache[T]) IsLoading(key int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.loading
}

// Set stores an authoritative value and notifies data subscribers. Exposed
// so push-driven updates can land without a fetch.
func (c *Cache[T]) Set(key int64, data T) {
	c.mu.Lock()
	e := c.entry(key)
	e.data = data
	e.ok = true
	subs := make([]func(T), 0, len(c.dataSubs[key]))
	for _, fn := range c.dataSubs[key] {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(data)
	}
}

// OnData subscribes to value changes for one key. Multiple independent
// components may subscribe; a single fetch notifies them all. Returns the
// disposer.
func (c *Cache[T]) OnData(key int64, fn func(T)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataSubs[key] == nil {
		c.dataSubs[key] = make(map[int]func(T))
	}
	c.nextSub++
	id := c.nextSub
	c.dataSubs[key][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.dataSubs[key], id)
	}
}

// OnLoading subscribes to in-flight status changes for one key.
func (c *Cache[T]) OnLoading(key int64, fn func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadSubs[key] == nil {
		c.loadSubs[key] = make(map[int]func(bool))
	}
	c.nextSub++
	id := c.nextSub
	c.loadSubs[key][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.loadSubs[key], id)
	}
}

func (c *Cache[T]) setLoading(key int64, loading bool) {
	c.mu.Lock()
	e := c.entry(key)
	e.loading = loading
	subs := make([]func(bool), 0, len(c.loadSubs[key]))
	for _, fn := range c.loadSubs[key] {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(loading)
	}
}

// entry returns the record for key, creating it if needed. Caller holds mu.
func (c *Cache[T]) entry(key int64) *cacheEntry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry[T]{}
		c.entries[key] = e
	}
	return e
}
