package convindex

import (
	"container/list"
	"sync"

	"github.com/hyperjump/docchat/internal/vector"
)

// storeCache is an LRU of loaded conversation stores.
type storeCache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cachedStore struct {
	id    string
	store *vector.Store
}

func newStoreCache(capacity int) *storeCache {
	if capacity < 1 {
		capacity = 1
	}
	return &storeCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *storeCache) get(id string) (*vector.Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[id]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cachedStore).store, true
	}
	return nil, false
}

func (c *storeCache) put(id string, s *vector.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[id]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cachedStore).store = s
		return
	}
	c.items[id] = c.lru.PushFront(&cachedStore{id: id, store: s})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*cachedStore).id)
	}
}

func (c *storeCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[id]; ok {
		c.lru.Remove(elem)
		delete(c.items, id)
	}
}

func (c *storeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
