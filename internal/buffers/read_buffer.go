// Package buffers implements the two spec §4.2/§4.3 buffer types that
// decouple the cache's hot read/write paths from policy bookkeeping.
package buffers

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/tempuscache/wtlfu/internal/node"
)

// ReadStatus is the result of Offer, matching spec §4.2's
// {SUCCESS, FAILED, FULL} outcomes.
type ReadStatus int8

const (
	ReadSuccess ReadStatus = 0
	ReadFailed  ReadStatus = -1
	ReadFull    ReadStatus = 1
)

const (
	stripeBufferSize = 16
	stripeMask       = uint64(stripeBufferSize - 1)
)

// readRing is a single lossy ring buffer stripe: a direct generalization
// of the otter/Caffeine BoundedBuffer port retrieved at
// other_examples/df777b40_.../otter/v2/internal/lossy/ring.go.go, with the
// node.Node pointer slot replaced by a generic *node.Entry[K,V] slot.
type readRing[K comparable, V any] struct {
	head atomic.Uint64
	_    [64 - 8]byte
	tail atomic.Uint64
	_    [64 - 8]byte
	buf  [stripeBufferSize]unsafe.Pointer
}

func (r *readRing[K, V]) offer(e *node.Entry[K, V]) ReadStatus {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head >= stripeBufferSize {
		return ReadFull
	}
	if r.tail.CompareAndSwap(tail, tail+1) {
		atomic.StorePointer(&r.buf[tail&stripeMask], unsafe.Pointer(e))
		return ReadSuccess
	}
	return ReadFailed
}

func (r *readRing[K, V]) drainTo(consume func(*node.Entry[K, V])) {
	head := r.head.Load()
	tail := r.tail.Load()
	for head != tail {
		idx := head & stripeMask
		ptr := atomic.LoadPointer(&r.buf[idx])
		if ptr == nil {
			break
		}
		atomic.StorePointer(&r.buf[idx], nil)
		consume((*node.Entry[K, V])(ptr))
		head++
	}
	r.head.Store(head)
}

// StripedReadBuffer is a lossy, bounded, multi-producer read buffer
// sharded across stripes so concurrent readers rarely contend on the same
// CAS (spec §4.2).
type StripedReadBuffer[K comparable, V any] struct {
	stripes []readRing[K, V]
	mask    uint32
	probe   atomic.Uint32 // striping counter, see Offer
}

// NewStripedReadBuffer sizes the stripe count to the next power of two
// >= half of GOMAXPROCS, per spec §4.2.
func NewStripedReadBuffer[K comparable, V any]() *StripedReadBuffer[K, V] {
	n := nextPow2(uint32(max(1, runtime.GOMAXPROCS(0)/2)))
	return &StripedReadBuffer[K, V]{
		stripes: make([]readRing[K, V], n),
		mask:    n - 1,
	}
}

func nextPow2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Offer records a read of e on a pseudo-randomly chosen stripe (the
// "thread-local probe" of spec §4.2, approximated here with a fast
// incrementing counter mixed per call since Go exposes no per-goroutine
// scratch register). Dropping on ReadFull is acceptable: reads only
// reorder policy queues best-effort.
func (b *StripedReadBuffer[K, V]) Offer(e *node.Entry[K, V]) ReadStatus {
	p := b.probe.Add(0x9E3779B9)
	idx := p & b.mask
	return b.stripes[idx].offer(e)
}

// DrainTo drains every stripe under the policy lock (spec §4.2). Must
// only be called while holding the exclusive policy lock.
func (b *StripedReadBuffer[K, V]) DrainTo(consume func(*node.Entry[K, V])) {
	for i := range b.stripes {
		b.stripes[i].drainTo(consume)
	}
}
