package advsearch

import (
	"testing"

	"github.com/smhanov/advsearch/kql"
)

func TestLRUCache(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", parseResult{Filters: kql.FilterState{Term: "a"}})
	c.put("b", parseResult{Filters: kql.FilterState{Term: "b"}})

	// touching a makes b the oldest
	if _, ok := c.get("a"); !ok {
		t.Fatalf("Expected a to be cached")
	}
	c.put("c", parseResult{Filters: kql.FilterState{Term: "c"}})

	if _, ok := c.get("b"); ok {
		t.Errorf("Expected b to be evicted")
	}
	if r, ok := c.get("a"); !ok || r.Filters.Term != "a" {
		t.Errorf("Expected a, got %+v", r)
	}
	if c.len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.len())
	}

	c.put("a", parseResult{Filters: kql.FilterState{Term: "A"}})
	if r, _ := c.get("a"); r.Filters.Term != "A" {
		t.Errorf("Expected updated value, got %q", r.Filters.Term)
	}
}

func TestLRUCacheDisabled(t *testing.T) {
	c := newLRUCache(0)
	c.put("a", parseResult{})
	if _, ok := c.get("a"); ok {
		t.Errorf("Expected disabled cache to store nothing")
	}
}
