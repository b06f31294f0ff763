// Package cache implements the lock-free compiled-delegate cache (C4): a
// read path that never blocks, backed by copy-on-write snapshots published
// with a single atomic pointer swap. Writers (cache misses) serialize on a
// mutex to avoid duplicate compilation, but every read - the hot path,
// once a scope has warmed up - is a single atomic load plus a map lookup
// with no locking at all.
package cache

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Key identifies one compiled delegate.
type Key struct {
	Type  reflect.Type
	Key   any
	Group string
}

// Cache holds compiled delegates keyed by Key. The zero value is not
// usable; construct with New.
type Cache struct {
	snapshot atomic.Pointer[map[Key]any]
	mu       sync.Mutex
}

// New creates an empty Cache.
func New() *Cache {
	c := &Cache{}
	empty := make(map[Key]any)
	c.snapshot.Store(&empty)
	return c
}

// Load returns the cached value for k, if present. Load never blocks.
func (c *Cache) Load(k Key) (any, bool) {
	m := *c.snapshot.Load()
	v, ok := m[k]
	return v, ok
}

// LoadOrCompile returns the cached value for k, compiling and publishing
// it via compile if absent. All misses share one mutex that is held while
// compile runs, so concurrent misses (for the same key or for different
// keys) wait for each other, and compile runs at most once per key.
func (c *Cache) LoadOrCompile(k Key, compile func() (any, error)) (any, error) {
	if v, ok := c.Load(k); ok {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.Load(k); ok {
		return v, nil
	}

	v, err := compile()
	if err != nil {
		return nil, err
	}

	old := *c.snapshot.Load()
	next := make(map[Key]any, len(old)+1)
	for kk, vv := range old {
		next[kk] = vv
	}
	next[k] = v
	c.snapshot.Store(&next)

	return v, nil
}
