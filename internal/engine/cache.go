package engine

import (
	"container/list"
	"errors"
	"sync"

	"github.com/mbeckem/blabber/internal/block"
	"github.com/mbeckem/blabber/internal/metrics"
)

// Errors returned by the cache.
var (
	ErrCacheFull   = errors.New("engine: cache is full and no block can be evicted")
	ErrBlockPinned = errors.New("engine: block is pinned and cannot be evicted")
)

// flushFunc writes a dirty block's current contents through to the block
// device. It is invoked whenever the cache needs to evict a dirty
// ("stolen") entry before its owning transaction has committed.
type flushFunc func(id block.ID, data []byte) error

type cacheEntry struct {
	id       block.ID
	data     []byte
	dirty    bool
	pinCount int
}

// cache is a pin-counted LRU cache of block contents sitting in front of
// the block device.
type cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[block.ID]*cacheEntry
	order    *list.List
	elems    map[block.ID]*list.Element
	flush    flushFunc
	metrics  *metrics.Collector
}

func newCache(capacity int, flush flushFunc, m *metrics.Collector) *cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &cache{
		capacity: capacity,
		entries:  make(map[block.ID]*cacheEntry),
		order:    list.New(),
		elems:    make(map[block.ID]*list.Element),
		flush:    flush,
		metrics:  m,
	}
}

// get returns a copy of the cached contents of id, or (nil, false) on a
// cache miss.
func (c *cache) get(id block.ID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		c.metrics.IncCacheMiss()
		return nil, false
	}
	c.touch(id)
	c.metrics.IncCacheHit()
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true
}

// put inserts or overwrites id's cached contents, evicting an entry first
// if the cache is at capacity. dirty marks the entry as needing a future
// flush at commit (or immediately, if evicted under pressure first).
func (c *cache) put(id block.ID, data []byte, dirty bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)

	if e, ok := c.entries[id]; ok {
		e.data = buf
		if dirty {
			e.dirty = true
		}
		c.touch(id)
		return nil
	}

	if len(c.entries) >= c.capacity {
		if err := c.evictOneLocked(); err != nil {
			return err
		}
	}

	e := &cacheEntry{id: id, data: buf, dirty: dirty}
	c.entries[id] = e
	c.touch(id)
	return nil
}

// touch must be called with mu held; it moves id to the front of the LRU
// order, adding it if not already present.
func (c *cache) touch(id block.ID) {
	if elem, ok := c.elems[id]; ok {
		c.order.MoveToFront(elem)
		return
	}
	c.elems[id] = c.order.PushFront(id)
}

// pin prevents id from being evicted until a matching unpin call.
func (c *cache) pin(id block.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.pinCount++
	}
}

// unpin releases one pin on id.
func (c *cache) unpin(id block.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && e.pinCount > 0 {
		e.pinCount--
	}
}

// evictOneLocked evicts the least recently used unpinned entry, flushing
// it first if dirty. Must be called with mu held.
func (c *cache) evictOneLocked() error {
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(block.ID)
		e := c.entries[id]
		if e == nil || e.pinCount > 0 {
			continue
		}

		if e.dirty && c.flush != nil {
			if err := c.flush(id, e.data); err != nil {
				return err
			}
		}

		c.order.Remove(elem)
		delete(c.elems, id)
		delete(c.entries, id)
		c.metrics.IncCacheEviction()
		return nil
	}
	return ErrCacheFull
}

// dirtyIDs returns the IDs of every currently dirty cache entry.
func (c *cache) dirtyIDs() []block.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []block.ID
	for id, e := range c.entries {
		if e.dirty {
			ids = append(ids, id)
		}
	}
	return ids
}

// markClean clears the dirty flag on id without touching its data.
func (c *cache) markClean(id block.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.dirty = false
	}
}

// drop removes id from the cache entirely, discarding any cached content
// without flushing it. Used on rollback to discard writes that never made
// it to the device.
func (c *cache) drop(id block.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.elems[id]; ok {
		c.order.Remove(elem)
		delete(c.elems, id)
	}
	delete(c.entries, id)
}

// size returns the number of entries currently cached.
func (c *cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
