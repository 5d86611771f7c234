package util

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRU_GetPut(t *testing.T) {
	c := NewLRU[string, int](3)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if c.Len() != 3 {
		t.Fatalf("expected len 3, got %d", c.Len())
	}
	for k, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		v, ok := c.Get(k)
		if !ok || v != want {
			t.Fatalf("key %q: want %d got %d (ok=%v)", k, want, v, ok)
		}
	}

	stats := c.Stats()
	if stats.Hits != 3 || stats.Misses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestLRU_EvictsLeastRecent(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected 'a' to still be present")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected 'c' to be present")
	}
}

func TestLRU_UpdateAndEvict(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Put("a", 1)
	c.Put("a", 99)
	if v, _ := c.Get("a"); v != 99 {
		t.Fatalf("expected updated value 99, got %d", v)
	}
	if c.Len() != 1 {
		t.Fatalf("update must not grow the cache, len=%d", c.Len())
	}

	c.Evict("a")
	c.Evict("missing")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, len=%d", c.Len())
	}
}

func TestLRU_GetOrCompute(t *testing.T) {
	c := NewLRU[string, int](4)
	calls := 0
	compute := func(k string) int {
		calls++
		return len(k)
	}
	if v := c.GetOrCompute("abc", compute); v != 3 {
		t.Fatalf("expected 3, got %d", v)
	}
	if v := c.GetOrCompute("abc", compute); v != 3 {
		t.Fatalf("expected cached 3, got %d", v)
	}
	if calls != 1 {
		t.Fatalf("expected one computation, got %d", calls)
	}
}

func TestLRU_Clear(t *testing.T) {
	c := NewLRU[int, int](0)
	c.Put(1, 1)
	c.Put(2, 2)
	if c.Len() != 1 {
		t.Fatalf("capacity 0 is raised to 1, len=%d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear")
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[string, int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%100)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Fatalf("cache exceeded capacity: %d", c.Len())
	}
}
