// Package reference implements the optional weak/soft reference
// reclamation queues of spec §4.9: a source of "this reference has been
// cleared" events plus the identifier needed to look the entry back up.
//
// Go exposes no generic way to take a weak reference against an opaque
// type parameter (weak.Make and runtime.AddCleanup both require a
// concrete pointee type), so this collector is itself generic over a
// pinned pointer type T. The cache layer never needs to teach Cache[K,V]
// itself about weak references: weak.Pointer[T] is already a small
// comparable value with reference-identity-over-referent equality, so
// WeakValueCache/WeakKeyCache at the root package simply instantiate
// Cache[K, weak.Pointer[V]] / Cache[weak.Pointer[E], V] and use this
// collector to learn when a referent has been reclaimed, so the matching
// entry can be evicted with cause COLLECTED (see weak.go and DESIGN.md's
// Open Question decisions).
//
// Grounded on spec §9's "model as a capability provided by the
// surrounding language" note; no pack repo or ecosystem library exposes a
// Java-style WeakReference/ReferenceQueue pair for Go, so this is built
// directly on the stdlib weak + runtime.AddCleanup primitives (Go 1.24).
package reference

import (
	"runtime"
	"weak"
)

// Collector tracks weakly-held pointees of type T and reports, via Poll,
// the identifiers of ones the garbage collector has reclaimed.
type Collector[T any] struct {
	cleared chan uint64
}

// NewCollector builds a collector with reasonable queue depth; a full
// queue simply means Poll needs calling more often; the cleanup itself
// never blocks (it drops the notification rather than stall the GC).
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{cleared: make(chan uint64, 1024)}
}

// Track registers ptr for weak tracking under id and returns a weak
// pointer the caller should retain in place of a strong reference. Once
// ptr becomes unreachable and is collected, id becomes available from
// Poll.
func (c *Collector[T]) Track(id uint64, ptr *T) weak.Pointer[T] {
	wp := weak.Make(ptr)
	runtime.AddCleanup(ptr, c.notify, id)
	return wp
}

func (c *Collector[T]) notify(id uint64) {
	select {
	case c.cleared <- id:
	default:
		// Queue full: the id is dropped. The cleanup runs only once, so
		// Poll never reports this id (the weak pointer itself is nil).
	}
}

// Poll returns the next reclaimed id, if any, without blocking.
func (c *Collector[T]) Poll() (id uint64, ok bool) {
	select {
	case id := <-c.cleared:
		return id, true
	default:
		return 0, false
	}
}

// Alive reports whether wp still points at a live value.
func Alive[T any](wp weak.Pointer[T]) bool {
	return wp.Value() != nil
}
