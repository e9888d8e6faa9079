package buffers

import (
	"runtime"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/lfq"
)

// Task is one deferred write-side mutation (AddTask/UpdateTask/
// RemovalTask in spec §4.3 terms) applied to policy structures under the
// maintenance lock.
type Task func()

const (
	initialWriteBufferCapacity = 4
)

// WriteBuffer is the lossless, growable MPSC queue of write tasks spec
// §4.3 describes. The fixed-capacity slot ring underneath each growth
// step is code.hybscloud.com/lfq's bounded MPSC queue (DESIGN.md); growth
// itself — allocate a bigger ring, drain the old one into it — is the
// same strategy Caffeine's own growable write buffer uses.
type WriteBuffer struct {
	ring atomic.Pointer[lfq.MPSC[Task]]

	// mu separates the rare exclusive grow from everything else: Add's
	// load-then-enqueue sequence and DrainTo's dequeue loop both hold the
	// read side and so can run concurrently with each other (matching the
	// underlying MPSC's actual multi-producer/single-consumer contract),
	// while grow holds the write side so neither can observe or operate on
	// a ring while it is mid-drain-and-retire.
	mu     sync.RWMutex
	maxCap int
}

// NewWriteBuffer builds a write buffer that grows up to
// 128 * ceil_pow2(GOMAXPROCS) slots, per spec §4.3.
func NewWriteBuffer() *WriteBuffer {
	cpus := runtime.GOMAXPROCS(0)
	maxCap := 128 * int(nextPow2(uint32(max(1, cpus))))
	wb := &WriteBuffer{maxCap: maxCap}
	wb.ring.Store(lfq.NewMPSC[Task](initialWriteBufferCapacity))
	return wb
}

// Add enqueues t. Producers retry up to 100 times with scheduling hints
// in between (spec §4.3); if the buffer still rejects after growing to
// its maximum, Add returns false and the caller must perform a
// synchronous maintenance pass itself (spec §4.3's overload guarantee).
func (wb *WriteBuffer) Add(t Task) bool {
	for attempt := 0; attempt < 100; attempt++ {
		wb.mu.RLock()
		ring := wb.ring.Load()
		err := ring.Enqueue(&t)
		wb.mu.RUnlock()
		if err == nil {
			return true
		}
		if wb.grow(ring) {
			continue
		}
		runtime.Gosched()
	}
	return false
}

// grow swaps in a larger ring if one hasn't already been installed by a
// racing producer, draining the old ring's contents into the new one.
// Returns true if growth happened (or another producer already grew),
// false if the buffer is already at its configured maximum.
//
// Taking the write lock here means grow can only proceed once every
// in-flight Add/DrainTo call has released the read lock, so nothing can
// still be mid-Enqueue (or mid-Dequeue) against the ring being retired by
// the time this function starts draining it.
func (wb *WriteBuffer) grow(observed *lfq.MPSC[Task]) bool {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	current := wb.ring.Load()
	if current != observed {
		// Someone else already grew the ring since we looked.
		return true
	}
	nextCap := current.Cap() * 2
	if nextCap > wb.maxCap {
		if current.Cap() >= wb.maxCap {
			return false
		}
		nextCap = wb.maxCap
	}

	bigger := lfq.NewMPSC[Task](nextCap)
	for {
		t, err := current.Dequeue()
		if err != nil {
			break
		}
		_ = bigger.Enqueue(&t)
	}
	wb.ring.Store(bigger)
	return true
}

// DrainTo drains every enqueued task, invoking run for each in FIFO
// order. Must only be called while holding the exclusive policy lock
// (spec §4.8).
//
// It also takes the read side of wb.mu for the whole dequeue loop, which
// excludes it from a concurrent grow (see grow's doc comment) without
// blocking concurrent Add calls. code.hybscloud.com/lfq's MPSC is
// single-consumer, so this loop and grow's drain-and-copy loop must never
// run against the same ring instance at once.
func (wb *WriteBuffer) DrainTo(run func(Task)) {
	wb.mu.RLock()
	defer wb.mu.RUnlock()

	ring := wb.ring.Load()
	for {
		t, err := ring.Dequeue()
		if err != nil {
			return
		}
		run(t)
	}
}
