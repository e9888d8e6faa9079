// Package policy implements the Window-TinyLFU admission and eviction
// policy of spec §4.6, together with the expiration bookkeeping (time-to-
// idle, time-to-live, variable expiry) spec §2 assigns to the same
// component ("PolicyEngine (~25%): W-TinyLFU admission, segmented LRU,
// expiration, refresh").
//
// Every exported method assumes the caller already holds the single
// exclusive policy lock (spec §5): nothing in this package takes its own
// lock. The root package's Cache is the only caller, from its drain pass
// and from Scheduler.RunLocked; Cache reads SketchInitialized and Maximum
// without that lock.
//
// Grounded on other_examples/9c82340f_dgraph-io-ristretto policy.go.go's
// WLFU (window + main split via segs[0]/segs[1]) and TinyLFU admission
// shape, adapted from ristretto's single "sample a handful of victims"
// eviction to the spec's eden-drain-then-admit cascade, and on the
// teacher's eviction.go for the overall "evict while over budget" loop
// structure.
package policy

import (
	"math/rand/v2"
	"slices"

	"github.com/tempuscache/wtlfu/internal/deque"
	"github.com/tempuscache/wtlfu/internal/node"
	"github.com/tempuscache/wtlfu/internal/sketch"
	"github.com/tempuscache/wtlfu/internal/wheel"
)

func sortEntries[K comparable, V any](entries []*node.Entry[K, V], less func(a, b *node.Entry[K, V]) bool) {
	slices.SortFunc(entries, func(a, b *node.Entry[K, V]) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		default:
			return 0
		}
	})
}

// Expiration pairs an entry unlinked by an expiration sweep with the cause
// to report to the removal listener.
type Expiration[K comparable, V any] struct {
	Entry *node.Entry[K, V]
	Cause node.RemovalCause
}

// Engine is the Window-TinyLFU PolicyEngine: three segmented LRU queues
// (eden / main-probation / main-protected), a frequency sketch for
// admission, a write-order deque and timer wheel for expiration.
type Engine[K comparable, V any] struct {
	eden, probation, protected *deque.Deque[K, V]
	writeOrder                 *deque.Deque[K, V]
	wheel                      *wheel.Wheel[K, V]
	sk                         *sketch.Frequency

	hash func(K) uint64

	features node.Features

	maximum                int // weighted; -1 = unbounded
	edenMax, protectedMax  int
	edenWeighted           int
	probationWeighted      int
	protectedWeighted      int

	expireAfterAccessNanos int64
	expireAfterWriteNanos  int64
}

// New builds a policy engine. maximum is the weighted capacity, or a
// negative value for an unbounded (weigher-only-accounted) cache.
// startNanos seeds the timer wheel's clock.
func New[K comparable, V any](features node.Features, hash func(K) uint64, maximum int, expireAfterAccessNanos, expireAfterWriteNanos int64, startNanos int64) *Engine[K, V] {
	e := &Engine[K, V]{
		eden:                   deque.NewAccessOrder[K, V](),
		probation:              deque.NewAccessOrder[K, V](),
		protected:              deque.NewAccessOrder[K, V](),
		writeOrder:             deque.NewWriteOrder[K, V](),
		wheel:                  wheel.New[K, V](startNanos),
		sk:                     sketch.New(0),
		hash:                   hash,
		features:               features,
		expireAfterAccessNanos: expireAfterAccessNanos,
		expireAfterWriteNanos:  expireAfterWriteNanos,
	}
	e.SetMaximum(maximum)
	return e
}

// defaultUnboundedSketchCapacity sizes the frequency sketch for an
// unbounded cache, which has no weighted capacity to derive a size from.
// RecordAccess's eden/probation/protected reordering and the access-order
// expiration sweep both depend on the sketch being initialized (see
// SketchInitialized), so an unbounded cache still needs some concrete
// sketch size rather than none at all.
const defaultUnboundedSketchCapacity = 1024

// SetMaximum changes the weighted capacity and re-derives the eden/
// protected sub-limits (spec §4.6: eden ~1% of capacity, protected 80% of
// the remaining main space). A negative maximum means unbounded; the
// sketch is still sized in that case (see defaultUnboundedSketchCapacity)
// so admission accounting and access-order maintenance stay active
// regardless of whether the cache is bounded.
func (e *Engine[K, V]) SetMaximum(maximum int) {
	e.maximum = maximum

	capacity := maximum
	if capacity < 1 {
		capacity = defaultUnboundedSketchCapacity
	}
	e.sk.EnsureCapacity(capacity)

	if maximum < 0 {
		return
	}
	e.edenMax = max(1, maximum/100)
	main := maximum - e.edenMax
	if main < 0 {
		main = 0
	}
	e.protectedMax = main * 80 / 100
}

// Maximum returns the configured weighted capacity (-1 if unbounded).
func (e *Engine[K, V]) Maximum() int { return e.maximum }

// WeightedSize returns the sum of policy weight over every linked entry
// (spec §8 property 2, restricted to the policy's own bookkeeping).
func (e *Engine[K, V]) WeightedSize() int {
	return e.edenWeighted + e.probationWeighted + e.protectedWeighted
}

// SketchInitialized reports whether the frequency sketch has been sized,
// gating the read fast-path bypass of spec §4.6.
func (e *Engine[K, V]) SketchInitialized() bool { return e.sk.Initialized() }

// segments returns the three segment queues in eviction-search order:
// probation (victims first), protected, eden.
func (e *Engine[K, V]) segments() [3]*deque.Deque[K, V] {
	return [3]*deque.Deque[K, V]{e.probation, e.protected, e.eden}
}

// OnAdd links a freshly created entry at eden's tail and, if the relevant
// features are enabled, into the write-order deque and timer wheel.
func (e *Engine[K, V]) OnAdd(entry *node.Entry[K, V]) {
	entry.Queue = node.QueueEden
	e.eden.PushTail(entry)
	e.edenWeighted += entry.Weight
	entry.PolicyWeight = entry.Weight

	if e.features.Has(node.FeatureExpireAfterWrite) || e.features.Has(node.FeatureRefreshAfterWrite) {
		e.writeOrder.PushTail(entry)
	}
	if e.features.Has(node.FeatureVariableExpiry) && entry.VarExpireNanos > 0 {
		e.wheel.Schedule(entry)
	}
}

// OnWrite re-orders an existing entry after its value (and therefore write
// time / variable-expiry deadline) changed.
func (e *Engine[K, V]) OnWrite(entry *node.Entry[K, V]) {
	if e.writeOrder.Contains(entry) {
		e.writeOrder.MoveToTail(entry)
	}
	if e.features.Has(node.FeatureVariableExpiry) {
		e.wheel.Reschedule(entry)
	}
}

// RescheduleVarExpiry re-schedules entry in the timer wheel after its
// VarExpireNanos deadline changed outside of a write (an ExpireAfterRead
// recompute); unlike OnWrite it leaves the write-order deque untouched.
func (e *Engine[K, V]) RescheduleVarExpiry(entry *node.Entry[K, V]) {
	if e.features.Has(node.FeatureVariableExpiry) {
		e.wheel.Reschedule(entry)
	}
}

// RecordAccess bumps the frequency sketch and applies the segment
// promotion rule of spec §4.6: probation entries whose policy weight fits
// within the protected budget move to protected-tail (capping protected's
// overflow back into probation); entries in any other segment simply move
// to that segment's tail.
func (e *Engine[K, V]) RecordAccess(entry *node.Entry[K, V], nowNanos int64) {
	entry.AccessTimeNanos = nowNanos
	e.sk.Increment(e.hash(entry.Key))

	switch entry.Queue {
	case node.QueueEden:
		e.eden.MoveToTail(entry)
	case node.QueueProbation:
		if entry.PolicyWeight <= e.protectedMax {
			e.probation.Remove(entry)
			e.probationWeighted -= entry.PolicyWeight
			entry.Queue = node.QueueProtected
			e.protected.PushTail(entry)
			e.protectedWeighted += entry.PolicyWeight
			e.capProtected()
		} else {
			e.probation.MoveToTail(entry)
		}
	case node.QueueProtected:
		e.protected.MoveToTail(entry)
	}
}

// capProtected demotes protected's coldest entries back to probation-tail
// while protected is over its 80%-of-main budget (spec §4.6).
func (e *Engine[K, V]) capProtected() {
	for e.protectedWeighted > e.protectedMax {
		entry := e.protected.PopHead()
		if entry == nil {
			break
		}
		e.protectedWeighted -= entry.PolicyWeight
		entry.Queue = node.QueueProbation
		e.probation.PushTail(entry)
		e.probationWeighted += entry.PolicyWeight
	}
}

// UpdateWeight adjusts the running segment total after a weigher call
// produces a new weight for an already-linked entry.
func (e *Engine[K, V]) UpdateWeight(entry *node.Entry[K, V], newWeight int) {
	delta := newWeight - entry.PolicyWeight
	switch entry.Queue {
	case node.QueueEden:
		e.edenWeighted += delta
	case node.QueueProbation:
		e.probationWeighted += delta
	case node.QueueProtected:
		e.protectedWeighted += delta
	}
	entry.PolicyWeight = newWeight
}

// Unlink removes entry from every policy structure it may be linked into:
// its segment queue, the write-order deque, and the timer wheel. Used for
// explicit removal, eviction, and expiration alike.
func (e *Engine[K, V]) Unlink(entry *node.Entry[K, V]) {
	switch entry.Queue {
	case node.QueueEden:
		e.eden.Remove(entry)
		e.edenWeighted -= entry.PolicyWeight
	case node.QueueProbation:
		e.probation.Remove(entry)
		e.probationWeighted -= entry.PolicyWeight
	case node.QueueProtected:
		e.protected.Remove(entry)
		e.protectedWeighted -= entry.PolicyWeight
	}
	entry.Queue = node.QueueNone
	e.writeOrder.Remove(entry)
	e.wheel.Deschedule(entry)
}

// EvictExcess runs the spec §4.6 eviction cascade while weighted size
// exceeds the configured maximum, invoking notify for each entry it
// unlinks. A negative maximum (unbounded cache) makes this a no-op.
func (e *Engine[K, V]) EvictExcess(notify func(*node.Entry[K, V], node.RemovalCause)) {
	if e.maximum < 0 {
		return
	}

	// Step 1: drain eden's overflow into probation; these are the
	// candidates the admission test below will weigh against victims.
	for e.edenWeighted > e.edenMax {
		entry := e.eden.PopHead()
		if entry == nil {
			break
		}
		e.edenWeighted -= entry.PolicyWeight
		entry.Queue = node.QueueProbation
		e.probation.PushTail(entry)
		e.probationWeighted += entry.PolicyWeight
	}

	// Step 2: evict while still over budget.
	for e.WeightedSize() > e.maximum {
		victim := e.nextVictim()
		if victim == nil {
			return
		}
		candidate := e.candidateFor()

		switch {
		case candidate == nil || candidate == victim:
			e.evict(victim, node.CauseSize, notify)
		case candidate.PolicyWeight > e.maximum:
			e.evict(candidate, node.CauseSize, notify)
		default:
			loser := e.admit(candidate, victim)
			e.evict(loser, node.CauseSize, notify)
		}
	}
}

// nextVictim is the true LRU candidate pairing: probation's head, falling
// back to protected's head then eden's head once probation is exhausted
// (spec §4.6: "candidates are exhausted first"). A zero-weight entry is
// skipped rather than returned (spec §4.6: "skip either if its weight is
// 0") — evicting it could never reduce weighted size, so it is left in
// place and the search continues toward the segment's tail.
func (e *Engine[K, V]) nextVictim() *node.Entry[K, V] {
	for _, seg := range e.segments() {
		for entry := seg.Peek(); entry != nil; entry = seg.Next(entry) {
			if entry.PolicyWeight != 0 {
				return entry
			}
		}
	}
	return nil
}

// candidateFor is the most-recently-demoted probation entry (probation's
// tail), walking back toward the head past any zero-weight entries (spec
// §4.6's skip rule applies to the candidate side exactly as it does to the
// victim side).
func (e *Engine[K, V]) candidateFor() *node.Entry[K, V] {
	for entry := e.probation.PeekTail(); entry != nil; entry = e.probation.Prev(entry) {
		if entry.PolicyWeight != 0 {
			return entry
		}
	}
	return nil
}

func (e *Engine[K, V]) evict(entry *node.Entry[K, V], cause node.RemovalCause, notify func(*node.Entry[K, V], node.RemovalCause)) {
	e.Unlink(entry)
	notify(entry, cause)
}

// admit is the TinyLFU admission test (spec §4.6): returns whichever of
// candidate/victim should be evicted.
func (e *Engine[K, V]) admit(candidate, victim *node.Entry[K, V]) *node.Entry[K, V] {
	candidateFreq := e.sk.Estimate(e.hash(candidate.Key))
	victimFreq := e.sk.Estimate(e.hash(victim.Key))

	if candidateFreq > victimFreq {
		return victim
	}
	if candidateFreq <= 5 {
		return candidate
	}
	// Tie-break: evict the candidate 127/128 of the time, the victim the
	// rest, to defeat frequency-inflation attacks (spec §4.6).
	if rand.IntN(128) == 0 {
		return victim
	}
	return candidate
}

// ExpireEntries unlinks every entry whose idle time, write age, or
// variable-expiry deadline has elapsed as of nowNanos, returning them with
// their removal cause attached. Must run before EvictExcess in a
// maintenance cycle (spec §4.8).
func (e *Engine[K, V]) ExpireEntries(nowNanos int64) []Expiration[K, V] {
	var out []Expiration[K, V]

	if e.features.Has(node.FeatureExpireAfterAccess) {
		for _, seg := range e.segments() {
			for {
				entry := seg.Peek()
				if entry == nil || nowNanos-entry.AccessTimeNanos <= e.expireAfterAccessNanos {
					break
				}
				e.Unlink(entry)
				out = append(out, Expiration[K, V]{entry, node.CauseExpired})
			}
		}
	}

	if e.features.Has(node.FeatureExpireAfterWrite) {
		for {
			entry := e.writeOrder.Peek()
			if entry == nil || nowNanos-entry.WriteTimeNanos <= e.expireAfterWriteNanos {
				break
			}
			e.Unlink(entry)
			out = append(out, Expiration[K, V]{entry, node.CauseExpired})
		}
	}

	if e.features.Has(node.FeatureVariableExpiry) {
		e.wheel.Advance(nowNanos, func(entry *node.Entry[K, V]) {
			e.Unlink(entry)
			out = append(out, Expiration[K, V]{entry, node.CauseExpired})
		})
	}

	return out
}

// --- Policy views (spec §6: "coldest/hottest N, oldest/youngest N by
// access, write, and variable expiry") ---

func (e *Engine[K, V]) allLive() []*node.Entry[K, V] {
	var all []*node.Entry[K, V]
	for _, seg := range e.segments() {
		seg.Each(func(entry *node.Entry[K, V]) { all = append(all, entry) })
	}
	return all
}

// ColdestN returns up to n keys with the lowest estimated access
// frequency: the entries nearest eviction under TinyLFU admission.
func (e *Engine[K, V]) ColdestN(n int) []K {
	return e.rankedByFrequency(n, false)
}

// HottestN returns up to n keys with the highest estimated access
// frequency.
func (e *Engine[K, V]) HottestN(n int) []K {
	return e.rankedByFrequency(n, true)
}

func (e *Engine[K, V]) rankedByFrequency(n int, hottest bool) []K {
	all := e.allLive()
	freq := func(entry *node.Entry[K, V]) uint8 { return e.sk.Estimate(e.hash(entry.Key)) }
	less := func(a, b *node.Entry[K, V]) bool { return freq(a) < freq(b) }
	if hottest {
		less = func(a, b *node.Entry[K, V]) bool { return freq(a) > freq(b) }
	}
	sortEntries(all, less)
	return firstNKeys(all, n)
}

// OldestByAccess / YoungestByAccess rank every live entry by last access
// time.
func (e *Engine[K, V]) OldestByAccess(n int) []K { return e.rankedByAccess(n, false) }
func (e *Engine[K, V]) YoungestByAccess(n int) []K { return e.rankedByAccess(n, true) }

func (e *Engine[K, V]) rankedByAccess(n int, youngest bool) []K {
	all := e.allLive()
	less := func(a, b *node.Entry[K, V]) bool { return a.AccessTimeNanos < b.AccessTimeNanos }
	if youngest {
		less = func(a, b *node.Entry[K, V]) bool { return a.AccessTimeNanos > b.AccessTimeNanos }
	}
	sortEntries(all, less)
	return firstNKeys(all, n)
}

// OldestByWrite / YoungestByWrite read directly off the write-order
// deque, already maintained in write-time order.
func (e *Engine[K, V]) OldestByWrite(n int) []K {
	var out []K
	e.writeOrder.Each(func(entry *node.Entry[K, V]) {
		if len(out) < n {
			out = append(out, entry.Key)
		}
	})
	return out
}

func (e *Engine[K, V]) YoungestByWrite(n int) []K {
	var out []K
	e.writeOrder.EachReverse(func(entry *node.Entry[K, V]) {
		if len(out) < n {
			out = append(out, entry.Key)
		}
	})
	return out
}

// OldestByVarExpiry / YoungestByVarExpiry rank entries scheduled in the
// timer wheel by their absolute deadline. The wheel itself only orders
// entries down to bucket granularity, so this view sorts explicitly; it
// is a monitoring path, not a hot one.
func (e *Engine[K, V]) OldestByVarExpiry(n int) []K { return e.rankedByVarExpiry(n, false) }
func (e *Engine[K, V]) YoungestByVarExpiry(n int) []K { return e.rankedByVarExpiry(n, true) }

func (e *Engine[K, V]) rankedByVarExpiry(n int, youngest bool) []K {
	all := e.allLive()
	var scheduled []*node.Entry[K, V]
	for _, entry := range all {
		if entry.InWheel() {
			scheduled = append(scheduled, entry)
		}
	}
	less := func(a, b *node.Entry[K, V]) bool { return a.VarExpireNanos < b.VarExpireNanos }
	if youngest {
		less = func(a, b *node.Entry[K, V]) bool { return a.VarExpireNanos > b.VarExpireNanos }
	}
	sortEntries(scheduled, less)
	return firstNKeys(scheduled, n)
}

func firstNKeys[K comparable, V any](entries []*node.Entry[K, V], n int) []K {
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]K, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, entries[i].Key)
	}
	return out
}
