// Package cache provides a keyed cache whose values know when they expire.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/im7mortal/kmutex"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// ExpiringCache maps keys to values and refreshes a value lazily, on access,
// once the expiry predicate reports it stale.
//
// Refreshes for one key are serialized: concurrent callers for the same key
// wait for the in-flight refresh and then observe its result. Callers for
// different keys never wait on each other's refresh.
type ExpiringCache[K comparable, V any] struct {
	keys      *kmutex.Kmutex
	mu        sync.RWMutex
	entries   map[K]*entry[V]
	isExpired func(V) bool
	now       func() time.Time
}

// Option configures an ExpiringCache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow sets the time source used for insertion metadata.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates an empty cache. isExpired is consulted on every lookup.
func New[K comparable, V any](isExpired func(V) bool, opts ...Option) *ExpiringCache[K, V] {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	return &ExpiringCache[K, V]{
		keys:      kmutex.New(),
		entries:   make(map[K]*entry[V]),
		isExpired: isExpired,
		now:       o.now,
	}
}

// GetOrRefresh returns the cached value for key when it is present and not
// expired. Otherwise, or always when forceRefresh is set, it calls refresh and
// installs the result. refresh reports a miss with ok=false: any stale entry
// is dropped and the miss is returned. A refresh error is returned as is and
// installs nothing.
func (c *ExpiringCache[K, V]) GetOrRefresh(
	ctx context.Context,
	key K,
	refresh func(ctx context.Context) (V, bool, error),
	forceRefresh bool,
) (V, bool, error) {
	c.keys.Lock(key)
	defer c.keys.Unlock(key)

	if forceRefresh {
		c.remove(key)
	} else if current, ok := c.load(key); ok && !c.isExpired(current.value) {
		return current.value, true, nil
	}

	var zero V

	value, ok, err := refresh(ctx)
	if err != nil {
		return zero, false, err
	}

	if !ok {
		c.remove(key)

		return zero, false, nil
	}

	c.mu.Lock()
	c.entries[key] = &entry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()

	return value, true, nil
}

// Peek returns the cached value for key without refreshing it, whether or not
// it has expired.
func (c *ExpiringCache[K, V]) Peek(key K) (V, time.Time, bool) {
	current, ok := c.load(key)
	if !ok {
		var zero V

		return zero, time.Time{}, false
	}

	return current.value, current.storedAt, true
}

// Invalidate drops the entry for key. It waits for an in-flight refresh of
// the same key to finish first.
func (c *ExpiringCache[K, V]) Invalidate(key K) {
	c.keys.Lock(key)
	defer c.keys.Unlock(key)

	c.remove(key)
}

// Len returns the number of entries, expired or not.
func (c *ExpiringCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *ExpiringCache[K, V]) load(key K) (*entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current, ok := c.entries[key]

	return current, ok
}

func (c *ExpiringCache[K, V]) remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}
