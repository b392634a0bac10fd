// Package tilecache implements the bounded-reuse multimap used for
// overview pyramids and intermediate pipeline results: a disk- or
// memory-backed LRU keyed by tile coordinate, plus RoaringBitmap-backed
// presence sets for cheap "have we already produced this tile" checks.
package tilecache

import (
	"container/list"
	"sync"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

type entry struct {
	key   coord.TileCoord
	value []byte
	size  int
}

// Cache is an LRU multimap from TileCoord to bytes bounded by a total byte
// budget rather than an item count, evicting the least-recently-used entry
// whenever inserting would exceed it.
type Cache struct {
	mu        sync.Mutex
	maxBytes  int
	totalSize int
	items     map[coord.TileCoord]*list.Element
	evictList *list.List
}

// New creates a cache that evicts entries once their combined size exceeds
// maxBytes.
func New(maxBytes int) *Cache {
	return &Cache{
		maxBytes:  maxBytes,
		items:     make(map[coord.TileCoord]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached bytes for c, promoting it to most-recently-used.
func (c *Cache) Get(coordKey coord.TileCoord) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[coordKey]
	if !ok {
		return nil, false
	}
	c.evictList.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Set stores value for c, evicting least-recently-used entries until the
// cache fits within its byte budget.
func (c *Cache) Set(coordKey coord.TileCoord, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[coordKey]; ok {
		old := el.Value.(*entry)
		c.totalSize += len(value) - old.size
		old.value = value
		old.size = len(value)
		c.evictList.MoveToFront(el)
	} else {
		el := c.evictList.PushFront(&entry{key: coordKey, value: value, size: len(value)})
		c.items[coordKey] = el
		c.totalSize += len(value)
	}

	for c.totalSize > c.maxBytes && c.evictList.Len() > 0 {
		back := c.evictList.Back()
		e := back.Value.(*entry)
		c.evictList.Remove(back)
		delete(c.items, e.key)
		c.totalSize -= e.size
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// TotalBytes returns the combined size of all cached values.
func (c *Cache) TotalBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSize
}
