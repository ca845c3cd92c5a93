package cache

import (
	"container/list"
	"sync"
)

var _ Cache[string, int] = (*LRUCache[string, int])(nil)

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a fixed size cache evicting the least recently used item.
type LRUCache[K comparable, V any] struct {
	capacity int
	onEvict  func(K, V)

	mu sync.Mutex
	// front is the most recently used entry
	list  *list.List
	items map[K]*list.Element
}

// NewLRUCache returns a cache holding at most capacity items. A
// non-positive capacity falls back to 100. onEvict, when set, runs for every
// entry dropped to make room.
func NewLRUCache[K comparable, V any](capacity int, onEvict func(K, V)) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 100
	}

	return &LRUCache[K, V]{
		capacity: capacity,
		onEvict:  onEvict,
		list:     list.New(),
		items:    make(map[K]*list.Element, capacity),
	}
}

func (c *LRUCache[K, V]) removeElement(e *list.Element) *lruEntry[K, V] {
	c.list.Remove(e)
	entry := e.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)

	return entry
}

// Get returns the value under key and marks it as most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.list.MoveToFront(e)
		return e.Value.(*lruEntry[K, V]).value, true
	}

	var zero V
	return zero, false
}

func (c *LRUCache[K, V]) Set(key K, value V, opts ...SetOption) bool {
	o := collect(opts)

	c.mu.Lock()

	e, ok := c.items[key]
	if ok && o.ifAbsent {
		c.mu.Unlock()
		return false
	}
	if !ok && o.ifPresent {
		c.mu.Unlock()
		return false
	}

	if ok {
		e.Value.(*lruEntry[K, V]).value = value
		c.list.MoveToFront(e)
		c.mu.Unlock()
		return true
	}

	c.items[key] = c.list.PushFront(&lruEntry[K, V]{key: key, value: value})

	var evicted *lruEntry[K, V]
	if c.list.Len() > c.capacity {
		evicted = c.removeElement(c.list.Back())
	}
	c.mu.Unlock()

	if evicted != nil && c.onEvict != nil {
		c.onEvict(evicted.key, evicted.value)
	}

	return true
}

func (c *LRUCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.removeElement(e)
	}
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.list.Len()
}
