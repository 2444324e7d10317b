package striped

import (
	"fmt"
	"sync"
	"testing"
)

func TestMapBasic(t *testing.T) {
	m := New[string, int](4)

	if _, ok := m.Load("a"); ok {
		t.Fatal("empty map returned a value")
	}

	if _, replaced := m.Store("a", 1); replaced {
		t.Error("first Store reported a previous value")
	}
	prev, replaced := m.Store("a", 2)
	if !replaced || prev != 1 {
		t.Errorf("Store = %d, %v; want 1, true", prev, replaced)
	}

	if v, ok := m.Load("a"); !ok || v != 2 {
		t.Errorf("Load(a) = %d, %v", v, ok)
	}

	m.Delete("a")
	if _, ok := m.Load("a"); ok {
		t.Error("value survived Delete")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestMapDefaultShards(t *testing.T) {
	m := New[int, int](0)
	if len(m.shards) != DefaultShards {
		t.Errorf("shards = %d, want %d", len(m.shards), DefaultShards)
	}
}

func TestMapUpdate(t *testing.T) {
	m := New[string, int](2)

	got := m.Update("k", func(v int, ok bool) int {
		if ok {
			t.Error("Update on absent key reported ok")
		}
		return v + 5
	})
	if got != 5 {
		t.Errorf("Update = %d, want 5", got)
	}
	m.Update("k", func(v int, _ bool) int { return v * 2 })
	if v, _ := m.Load("k"); v != 10 {
		t.Errorf("Load(k) = %d, want 10", v)
	}
}

func TestMapRange(t *testing.T) {
	m := New[int, string](8)
	for i := 0; i < 100; i++ {
		m.Store(i, fmt.Sprint(i))
	}
	if m.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", m.Len())
	}

	seen := make(map[int]bool)
	m.Range(func(k int, v string) bool {
		if v != fmt.Sprint(k) {
			t.Errorf("value for %d = %q", k, v)
		}
		seen[k] = true
		return true
	})
	if len(seen) != 100 {
		t.Errorf("Range visited %d keys, want 100", len(seen))
	}

	visited := 0
	m.Range(func(int, string) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Errorf("Range did not stop early: visited %d", visited)
	}
}

func TestMapConcurrentUpdate(t *testing.T) {
	m := New[string, int](4)
	keys := []string{"a", "b", "c", "d", "e"}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Update(keys[i%len(keys)], func(v int, _ bool) int { return v + 1 })
			}
		}()
	}
	wg.Wait()

	total := 0
	m.Range(func(_ string, v int) bool {
		total += v
		return true
	})
	if total != 8000 {
		t.Errorf("total = %d, want 8000", total)
	}
}
