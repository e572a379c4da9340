package advsearch

import (
	"container/list"
	"sync"

	"github.com/smhanov/advsearch/kql"
)

// parseResult is what the parse endpoints return for one query string.
type parseResult struct {
	Filters  kql.FilterState `json:"filters"`
	Warnings []kql.Warning   `json:"warnings"`
}

type cacheItem struct {
	key   string
	value parseResult
}

// lruCache keeps the most recently parsed query strings. A capacity of zero
// or less disables it.
type lruCache struct {
	mutex    sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *lruCache) get(key string) (parseResult, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if element, found := c.items[key]; found {
		c.order.MoveToFront(element)
		return element.Value.(*cacheItem).value, true
	}
	return parseResult{}, false
}

func (c *lruCache) put(key string, value parseResult) {
	if c.capacity <= 0 {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if element, found := c.items[key]; found {
		c.order.MoveToFront(element)
		element.Value.(*cacheItem).value = value
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheItem).key)
		}
	}

	c.items[key] = c.order.PushFront(&cacheItem{key: key, value: value})
}

func (c *lruCache) len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.order.Len()
}

// parseQuery parses query with a fresh parser, consulting the cache first.
// Cached results are shared and must not be modified.
func (s *Server) parseQuery(query string) parseResult {
	if r, ok := s.cache.get(query); ok {
		return r
	}
	filters, warnings := kql.NewParser(s.log).Parse(query)
	if warnings == nil {
		warnings = []kql.Warning{}
	}
	r := parseResult{Filters: filters, Warnings: warnings}
	s.cache.put(query, r)
	return r
}
