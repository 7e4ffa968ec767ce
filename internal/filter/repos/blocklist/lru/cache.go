package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist"
)

// verdictCache is an LRU-backed implementation of blocklist.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type verdictCache struct {
	lru       *lru.Cache[string, blocklist.Verdict]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// newLRU is swapped in tests to exercise the constructor error path.
var newLRU = func(size int, onEvict func(string, blocklist.Verdict)) (*lru.Cache[string, blocklist.Verdict], error) {
	return lru.NewWithEvict(size, onEvict)
}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (blocklist.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	c := &verdictCache{}
	cache, err := newLRU(size, func(string, blocklist.Verdict) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = cache
	return c, nil
}

// Get looks up a verdict by subject. When found, increments hits; otherwise increments misses.
func (c *verdictCache) Get(subject string) (blocklist.Verdict, bool) {
	if v, ok := c.lru.Get(subject); ok {
		c.hits.Add(1)
		return v, true
	}
	c.misses.Add(1)
	return blocklist.Verdict{}, false
}

func (c *verdictCache) Put(subject string, v blocklist.Verdict) {
	c.lru.Add(subject, v)
}

func (c *verdictCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *verdictCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *verdictCache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

// disabledCache implementation

func (d *disabledCache) Get(string) (blocklist.Verdict, bool) { return blocklist.Verdict{}, false }

func (d *disabledCache) Put(string, blocklist.Verdict) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ blocklist.DecisionCache = (*verdictCache)(nil)
var _ blocklist.DecisionCache = (*disabledCache)(nil)
