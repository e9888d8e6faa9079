package maintenance

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAfterWriteTriggersDrain(t *testing.T) {
	var drains atomic.Int32
	s := New(func() { drains.Add(1) }, Inline, nil)

	s.AfterWrite()
	if drains.Load() != 1 {
		t.Fatalf("drains = %d, want 1 after a single AfterWrite", drains.Load())
	}
}

func TestAfterReadWithoutFullDoesNotDrain(t *testing.T) {
	var drains atomic.Int32
	s := New(func() { drains.Add(1) }, Inline, nil)

	s.AfterRead(false)
	if drains.Load() != 0 {
		t.Fatalf("drains = %d, want 0: a non-full read must not request a drain", drains.Load())
	}
}

func TestAfterReadFullTriggersDrain(t *testing.T) {
	var drains atomic.Int32
	s := New(func() { drains.Add(1) }, Inline, nil)

	s.AfterRead(true)
	if drains.Load() != 1 {
		t.Fatalf("drains = %d, want 1 after a full-buffer read", drains.Load())
	}
}

func TestRunNowAlwaysDrainsOnce(t *testing.T) {
	var drains atomic.Int32
	s := New(func() { drains.Add(1) }, Inline, nil)

	s.RunNow()
	if drains.Load() != 1 {
		t.Fatalf("drains = %d, want exactly 1 from RunNow even with nothing pending", drains.Load())
	}
}

func TestRunLockedExcludesDrain(t *testing.T) {
	var order []string
	var mu sync.Mutex
	s := New(func() {
		mu.Lock()
		order = append(order, "drain")
		mu.Unlock()
	}, Inline, nil)

	s.RunLocked(func() {
		mu.Lock()
		order = append(order, "locked")
		mu.Unlock()
	})
	s.AfterWrite()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "locked" || order[1] != "drain" {
		t.Fatalf("order = %v, want [locked drain]", order)
	}
}

func TestConcurrentAfterWriteEventuallyDrainsEverything(t *testing.T) {
	var requested, drained atomic.Int32
	var mu sync.Mutex
	done := make(map[int]bool)

	s := New(func() {
		mu.Lock()
		for i := range done {
			done[i] = true
		}
		mu.Unlock()
		drained.Add(1)
	}, Goroutine, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		mu.Lock()
		done[i] = false
		mu.Unlock()
		requested.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AfterWrite()
		}()
	}
	wg.Wait()

	s.RunNow() // guarantees at least one more full drain after every AfterWrite returned

	mu.Lock()
	defer mu.Unlock()
	for i, ok := range done {
		if !ok {
			t.Fatalf("request %d was never covered by a drain", i)
		}
	}
	if drained.Load() == 0 {
		t.Fatalf("expected at least one drain to have run")
	}
}

func TestInlineExecutorRunsSynchronously(t *testing.T) {
	ran := false
	ok := Inline(func() { ran = true })
	if !ok || !ran {
		t.Fatalf("Inline must run the task synchronously and report acceptance")
	}
}
