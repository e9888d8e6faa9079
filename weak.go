package wtlfu

import (
	"sync"
	"weak"

	"github.com/tempuscache/wtlfu/internal/node"
	"github.com/tempuscache/wtlfu/internal/reference"
)

// WeakValueCache adapts Cache to hold weakly-reachable values (spec §4.9):
// the garbage collector may reclaim a stored *V once nothing outside the
// cache still references it, at which point the entry is evicted with
// cause COLLECTED on the next maintenance pass.
//
// This is built directly on Cache[K, weak.Pointer[V]] rather than a
// parallel entry/table/policy implementation: weak.Pointer[V] is itself a
// small comparable value with reference-identity-over-referent equality,
// exactly the semantics spec §4.9 asks a weak/soft value to have, so the
// existing generic Cache already does the right thing once instantiated
// at that value type. WeakValueCache is the boundary layer that converts
// strong *V in and out, and wires internal/reference.Collector's
// reclaim-notification channel into the inner cache's maintenance cycle.
type WeakValueCache[K comparable, V any] struct {
	inner     *Cache[K, weak.Pointer[V]]
	collector *reference.Collector[V]

	mu     sync.Mutex
	nextID uint64
	idKey  map[uint64]K
}

// NewWeakValueCache builds a WeakValueCache. opts configures the
// underlying Cache[K, weak.Pointer[V]] exactly as New does.
func NewWeakValueCache[K comparable, V any](opts ...Option[K, weak.Pointer[V]]) (*WeakValueCache[K, V], error) {
	inner, err := New[K, weak.Pointer[V]](opts...)
	if err != nil {
		return nil, err
	}
	wv := &WeakValueCache[K, V]{
		inner:     inner,
		collector: reference.NewCollector[V](),
		idKey:     make(map[uint64]K),
	}
	inner.features |= node.FeatureWeakValues
	inner.reclaim = wv.reclaimCollected
	return wv, nil
}

func (wv *WeakValueCache[K, V]) track(key K, value *V) weak.Pointer[V] {
	wv.mu.Lock()
	id := wv.nextID
	wv.nextID++
	wv.idKey[id] = key
	wv.mu.Unlock()
	return wv.collector.Track(id, value)
}

// reclaimCollected drains every pending collection notification and
// evicts the corresponding key with cause COLLECTED. Called once per
// maintenance cycle by the inner Cache.
func (wv *WeakValueCache[K, V]) reclaimCollected() {
	for {
		id, ok := wv.collector.Poll()
		if !ok {
			return
		}
		wv.mu.Lock()
		key, found := wv.idKey[id]
		delete(wv.idKey, id)
		wv.mu.Unlock()
		if found {
			wv.inner.removeWithCause(key, CauseCollected)
		}
	}
}

// Put stores value under key, holding only a weak reference to it. The
// caller must keep its own strong reference alive for as long as it wants
// the cached copy to survive.
func (wv *WeakValueCache[K, V]) Put(key K, value *V) error {
	return wv.inner.Put(key, wv.track(key, value))
}

// Get returns the value stored under key, or (nil, false) if key is
// absent or its value has already been garbage collected.
func (wv *WeakValueCache[K, V]) Get(key K) (*V, bool) {
	wp, ok := wv.inner.Get(key)
	if !ok {
		return nil, false
	}
	v := wp.Value()
	return v, v != nil
}

// Remove unconditionally removes key, reporting whether it was present.
func (wv *WeakValueCache[K, V]) Remove(key K) bool {
	_, removed, _ := wv.inner.Remove(key)
	return removed
}

// EstimatedSize returns an approximate entry count, including entries
// whose value has been collected but not yet reclaimed by maintenance.
func (wv *WeakValueCache[K, V]) EstimatedSize() int { return wv.inner.EstimatedSize() }

// CleanUp forces an immediate maintenance pass, reclaiming any
// already-collected values.
func (wv *WeakValueCache[K, V]) CleanUp() { wv.inner.CleanUp() }

// Close stops the inner cache's optional auto-cleanup janitor, if one was
// configured.
func (wv *WeakValueCache[K, V]) Close() { wv.inner.Close() }

// WeakKeyCache adapts Cache to hold weakly-reachable keys (spec §4.9):
// an entry stays reachable only as long as something outside the cache
// still holds the *E the key was built from. Like WeakValueCache, this is
// a thin boundary layer over Cache[weak.Pointer[E], V] rather than a
// second implementation of the entry/table/policy machinery.
type WeakKeyCache[E any, V any] struct {
	inner     *Cache[weak.Pointer[E], V]
	collector *reference.Collector[E]

	mu      sync.Mutex
	nextID  uint64
	idPoint map[uint64]weak.Pointer[E]
}

// NewWeakKeyCache builds a WeakKeyCache. opts configures the underlying
// Cache[weak.Pointer[E], V] exactly as New does.
func NewWeakKeyCache[E any, V any](opts ...Option[weak.Pointer[E], V]) (*WeakKeyCache[E, V], error) {
	inner, err := New[weak.Pointer[E], V](opts...)
	if err != nil {
		return nil, err
	}
	wk := &WeakKeyCache[E, V]{
		inner:     inner,
		collector: reference.NewCollector[E](),
		idPoint:   make(map[uint64]weak.Pointer[E]),
	}
	inner.reclaim = wk.reclaimCollected
	return wk, nil
}

func (wk *WeakKeyCache[E, V]) track(keyPtr *E) weak.Pointer[E] {
	wk.mu.Lock()
	id := wk.nextID
	wk.nextID++
	wp := wk.collector.Track(id, keyPtr)
	wk.idPoint[id] = wp
	wk.mu.Unlock()
	return wp
}

func (wk *WeakKeyCache[E, V]) reclaimCollected() {
	for {
		id, ok := wk.collector.Poll()
		if !ok {
			return
		}
		wk.mu.Lock()
		wp, found := wk.idPoint[id]
		delete(wk.idPoint, id)
		wk.mu.Unlock()
		if found {
			wk.inner.removeWithCause(wp, CauseCollected)
		}
	}
}

// Put stores value under keyPtr, holding only a weak reference to the key.
func (wk *WeakKeyCache[E, V]) Put(keyPtr *E, value V) error {
	return wk.inner.Put(wk.track(keyPtr), value)
}

// Get returns the value stored under keyPtr, if keyPtr's entry is still
// present.
func (wk *WeakKeyCache[E, V]) Get(keyPtr *E) (V, bool) {
	return wk.inner.Get(weak.Make(keyPtr))
}

// Remove unconditionally removes keyPtr's entry, reporting whether it was
// present.
func (wk *WeakKeyCache[E, V]) Remove(keyPtr *E) bool {
	_, removed, _ := wk.inner.Remove(weak.Make(keyPtr))
	return removed
}

// EstimatedSize returns an approximate entry count, including entries
// whose key has been collected but not yet reclaimed by maintenance.
func (wk *WeakKeyCache[E, V]) EstimatedSize() int { return wk.inner.EstimatedSize() }

// CleanUp forces an immediate maintenance pass, reclaiming any
// already-collected keys.
func (wk *WeakKeyCache[E, V]) CleanUp() { wk.inner.CleanUp() }

// Close stops the inner cache's optional auto-cleanup janitor, if one was
// configured.
func (wk *WeakKeyCache[E, V]) Close() { wk.inner.Close() }
