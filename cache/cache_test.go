package cache

import (
	"errors"
	"sync"
	"testing"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string, int](3)

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v, want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) after update = %d, want 10", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // refresh a; b becomes the eviction candidate
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}

	if evicts := c.Stats().Evicts; evicts != 1 {
		t.Errorf("Stats().Evicts = %d, want 1", evicts)
	}
}

func TestCache_GetOrCompute(t *testing.T) {
	c := New[string, int](4)

	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute("k", compute)
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		if v != 42 {
			t.Fatalf("GetOrCompute = %d, want 42", v)
		}
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}

func TestCache_GetOrComputeError(t *testing.T) {
	c := New[string, int](4)
	boom := errors.New("boom")

	_, err := c.GetOrCompute("k", func() (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrCompute error = %v, want %v", err, boom)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("failed compute must not be cached")
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone after Delete")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int, int](64)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := (seed*31 + i) % 100
				c.Set(k, k)
				c.Get(k)
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Len() = %d exceeds capacity 64", c.Len())
	}
}

func TestCache_DefaultCapacity(t *testing.T) {
	c := New[string, int](0)
	if c.Stats().Capacity != 128 {
		t.Errorf("default capacity = %d, want 128", c.Stats().Capacity)
	}
}
