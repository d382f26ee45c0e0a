// Package cache memoizes path computations for one snapshot version.
//
// A Cache is created together with the index it serves and dropped with it,
// so entries can never outlive the snapshot they were computed from.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/scrypster/relgraph/pkg/types"
)

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 1000

// Key identifies one path computation. Every parameter that changes the
// result is part of the key.
type Key struct {
	Operation   string
	Source      string
	Target      string
	Strategies  []types.Strategy
	MaxHops     int
	MaxPaths    int
	MinStrength float64
	Query       string
}

// String returns the canonical form of the key. Strategies are sorted, so
// the same set in any order produces the same key.
func (k Key) String() string {
	strategies := make([]string, len(k.Strategies))
	for i, s := range k.Strategies {
		strategies[i] = string(s)
	}
	sort.Strings(strategies)
	strategies = dedupSorted(strategies)

	return fmt.Sprintf("%s|%q|%q|%s|h=%d|n=%d|min=%g|q=%q",
		k.Operation, k.Source, k.Target, strings.Join(strategies, ","),
		k.MaxHops, k.MaxPaths, k.MinStrength, k.Query)
}

func dedupSorted(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Stats reports cache effectiveness.
type Stats struct {
	Version string `json:"version"`
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Shared  uint64 `json:"shared"`
}

// Cache is an LRU memo with single-flight computation per key.
//
// Thread Safety: a Cache is safe for concurrent use.
type Cache[V any] struct {
	version string
	entries *lru.Cache[string, V]
	group   singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	shared atomic.Uint64
}

// New creates a cache bound to a snapshot version. A capacity below 1 uses
// DefaultCapacity.
func New[V any](version string, capacity int) *Cache[V] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, V](capacity)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(fmt.Sprintf("cache: New: %v", err))
	}
	return &Cache[V]{version: version, entries: entries}
}

// Version returns the snapshot version the cache belongs to.
func (c *Cache[V]) Version() string {
	return c.version
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key Key) (V, bool) {
	v, ok := c.entries.Get(key.String())
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key.
func (c *Cache[V]) Set(key Key, value V) {
	c.entries.Add(key.String(), value)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Version: c.version,
		Entries: c.entries.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Shared:  c.shared.Load(),
	}
}

// GetOrCompute returns the cached value for key, or runs compute once for
// all concurrent callers of the same key. The result is stored only when
// compute reports it cacheable and returns no error; truncated results are
// therefore recomputed on the next call.
func (c *Cache[V]) GetOrCompute(key Key, compute func() (V, bool, error)) (V, bool, error) {
	k := key.String()
	if v, ok := c.entries.Get(k); ok {
		c.hits.Add(1)
		return v, true, nil
	}
	c.misses.Add(1)

	res, err, shared := c.group.Do(k, func() (any, error) {
		if v, ok := c.entries.Get(k); ok {
			return v, nil
		}
		v, cacheable, err := compute()
		if err != nil {
			return v, err
		}
		if cacheable {
			c.entries.Add(k, v)
		}
		return v, nil
	})
	if shared {
		c.shared.Add(1)
	}
	v, _ := res.(V)
	return v, false, err
}
