package table

import (
	"sync"
	"testing"

	"github.com/tempuscache/wtlfu/internal/node"
)

func TestLoadOrStore(t *testing.T) {
	tb := New[string, int]()

	e, loaded := tb.LoadOrStore("a", func() *node.Entry[string, int] {
		return node.New("a", 1, 1, 0)
	})
	if loaded {
		t.Fatalf("expected first LoadOrStore to create a new entry")
	}
	if e.Value() != 1 {
		t.Fatalf("got value %d, want 1", e.Value())
	}

	e2, loaded := tb.LoadOrStore("a", func() *node.Entry[string, int] {
		t.Fatal("newEntry must not be called when key already present")
		return nil
	})
	if !loaded {
		t.Fatalf("expected second LoadOrStore to observe the existing entry")
	}
	if e2 != e {
		t.Fatalf("expected the same entry pointer back")
	}
}

func TestGetMissing(t *testing.T) {
	tb := New[string, int]()
	if _, ok := tb.Get("missing"); ok {
		t.Fatalf("expected Get on an empty table to report absent")
	}
}

func TestDeleteIfIdentity(t *testing.T) {
	tb := New[string, int]()
	e, _ := tb.LoadOrStore("k", func() *node.Entry[string, int] { return node.New("k", 1, 1, 0) })

	stale := node.New("k", 2, 1, 0)
	if tb.DeleteIf("k", stale) {
		t.Fatalf("DeleteIf must not remove when the stored entry differs from expect")
	}
	if _, ok := tb.Get("k"); !ok {
		t.Fatalf("entry should still be present after a failed DeleteIf")
	}

	if !tb.DeleteIf("k", e) {
		t.Fatalf("DeleteIf should remove when expect matches the stored entry")
	}
	if _, ok := tb.Get("k"); ok {
		t.Fatalf("entry should be gone after a successful DeleteIf")
	}
}

func TestStoreReplaces(t *testing.T) {
	tb := New[string, int]()
	tb.LoadOrStore("k", func() *node.Entry[string, int] { return node.New("k", 1, 1, 0) })

	replacement := node.New("k", 99, 1, 0)
	tb.Store("k", replacement)

	got, ok := tb.Get("k")
	if !ok || got != replacement {
		t.Fatalf("Store must unconditionally install the new entry")
	}
}

func TestLenAndRange(t *testing.T) {
	tb := New[int, int]()
	const n = 200
	for i := 0; i < n; i++ {
		i := i
		tb.LoadOrStore(i, func() *node.Entry[int, int] { return node.New(i, i, 1, 0) })
	}
	if got := tb.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}

	seen := make(map[int]bool)
	tb.Range(func(k int, _ *node.Entry[int, int]) bool {
		seen[k] = true
		return true
	})
	if len(seen) != n {
		t.Fatalf("Range visited %d keys, want %d", len(seen), n)
	}
}

func TestRangeEarlyStop(t *testing.T) {
	tb := New[int, int]()
	for i := 0; i < 10; i++ {
		i := i
		tb.LoadOrStore(i, func() *node.Entry[int, int] { return node.New(i, i, 1, 0) })
	}
	count := 0
	tb.Range(func(_ int, _ *node.Entry[int, int]) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Fatalf("Range should have stopped after fn returned false, got %d calls", count)
	}
}

func TestHashOfStable(t *testing.T) {
	tb := New[string, int]()
	h1 := tb.HashOf("same-key")
	h2 := tb.HashOf("same-key")
	if h1 != h2 {
		t.Fatalf("HashOf must be stable across calls for the same table and key")
	}
}

func TestConcurrentLoadOrStoreDistinctKeys(t *testing.T) {
	tb := New[int, int]()
	var wg sync.WaitGroup
	const n = 500
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb.LoadOrStore(i, func() *node.Entry[int, int] { return node.New(i, i*2, 1, 0) })
		}()
	}
	wg.Wait()

	if got := tb.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}
	for i := 0; i < n; i++ {
		e, ok := tb.Get(i)
		if !ok || e.Value() != i*2 {
			t.Fatalf("key %d: got %v present=%v, want %d", i, e, ok, i*2)
		}
	}
}

func TestConcurrentLoadOrStoreSameKey(t *testing.T) {
	tb := New[string, int]()
	var wg sync.WaitGroup
	const n = 100
	results := make([]*node.Entry[string, int], n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _ := tb.LoadOrStore("shared", func() *node.Entry[string, int] {
				return node.New("shared", i, 1, 0)
			})
			results[i] = e
		}()
	}
	wg.Wait()

	first := results[0]
	for i, e := range results {
		if e != first {
			t.Fatalf("goroutine %d observed a different entry pointer; LoadOrStore must be linearizable per key", i)
		}
	}
}
