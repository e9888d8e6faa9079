// Package node defines the single tagged entry layout shared by every
// cache queue (eden/probation/protected, write-order, timer wheel).
//
// The source material this spec distills from grows a family of
// specialized entry subclasses (one per combination of weak keys, weak or
// soft values, expiry mode, …) to avoid paying for fields a given cache
// configuration never uses. Go has no cheap subclassing story for that,
// so instead every Entry carries every link field and a Features bitmask
// set once at construction; a feature a cache doesn't use simply never
// gets touched.
package node

import (
	"sync"
)

// Features is a bitmask of the optional capabilities a cache was built
// with, set once per Cache and copied onto every Entry it creates.
type Features uint8

const (
	FeatureExpireAfterAccess Features = 1 << iota
	FeatureExpireAfterWrite
	FeatureRefreshAfterWrite
	FeatureVariableExpiry
	FeatureWeakValues
	FeatureSoftValues
	FeatureWeigher
)

// Has reports whether f includes all bits in want.
func (f Features) Has(want Features) bool { return f&want == want }

// QueueTag identifies which W-TinyLFU segment an entry is currently
// linked into.
type QueueTag uint8

const (
	QueueNone QueueTag = iota
	QueueEden
	QueueProbation
	QueueProtected
)

// Lifecycle is the alive/retired/dead tag from spec §3.
type Lifecycle uint8

const (
	Alive Lifecycle = iota
	Retired
	Dead
)

// RemovalCause is why an entry left the cache (spec §4.10, GLOSSARY).
type RemovalCause uint8

const (
	CauseExplicit RemovalCause = iota
	CauseReplaced
	CauseCollected
	CauseExpired
	CauseSize
)

func (c RemovalCause) String() string {
	switch c {
	case CauseExplicit:
		return "EXPLICIT"
	case CauseReplaced:
		return "REPLACED"
	case CauseCollected:
		return "COLLECTED"
	case CauseExpired:
		return "EXPIRED"
	case CauseSize:
		return "SIZE"
	default:
		return "UNKNOWN"
	}
}

// WasEvicted reports whether the cache, rather than the caller, decided to
// remove the entry.
func (c RemovalCause) WasEvicted() bool {
	return c == CauseCollected || c == CauseExpired || c == CauseSize
}

// Entry is one cached mapping plus every piece of bookkeeping the policy,
// expiration and table layers need. Field access outside of Lock/Unlock
// (the per-entry critical section) is limited to the link fields, which
// are only ever touched while the caller holds the single exclusive
// policy lock (see internal/maintenance).
type Entry[K comparable, V any] struct {
	mu sync.Mutex

	Key      K
	value    V
	Features Features

	// Weight is the entry's own last-computed weight; PolicyWeight is the
	// value the policy has accounted for in its running totals and may
	// lag Weight until the next UpdateTask is drained (spec §3, §GLOSSARY).
	Weight       int
	PolicyWeight int

	Queue QueueTag

	lifecycle Lifecycle
	notified  bool // at-most-once removal-notification guard

	AccessTimeNanos int64
	WriteTimeNanos  int64
	VarExpireNanos  int64 // absolute deadline; 0 = unset

	// refreshInFlight is the CAS'd "someone already won the refresh race"
	// flag described in spec §4.7.
	refreshInFlight bool

	// Access-order deque links (AccessOrderDeque, spec §4.4).
	AccessPrev, AccessNext *Entry[K, V]
	// Write-order deque links (WriteOrderDeque, spec §4.4).
	WritePrev, WriteNext *Entry[K, V]
	// Timer wheel bucket sentinel links (spec §4.5).
	WheelPrev, WheelNext *Entry[K, V]
	WheelLevel           int8 // -1 when not scheduled
	WheelBucket          int8
}

// New constructs an alive entry with the given key/value/weight.
func New[K comparable, V any](key K, value V, weight int, features Features) *Entry[K, V] {
	return &Entry[K, V]{
		Key:         key,
		value:       value,
		Weight:      weight,
		Queue:       QueueNone,
		WheelLevel:  -1,
		WheelBucket: -1,
		Features:    features,
	}
}

// Lock acquires the entry's per-entry critical section (spec §4.7,
// §5: "a short monitor over the entry object").
func (e *Entry[K, V]) Lock() { e.mu.Lock() }

// Unlock releases the per-entry critical section.
func (e *Entry[K, V]) Unlock() { e.mu.Unlock() }

// Value returns the current value, taking the per-entry lock for the
// read; the caller must not already hold it.
func (e *Entry[K, V]) Value() V {
	e.mu.Lock()
	v := e.value
	e.mu.Unlock()
	return v
}

// SetValue replaces the value. Caller must already hold the lock.
func (e *Entry[K, V]) SetValue(v V) { e.value = v }

// RawValue reads the value without acquiring the lock. Caller must already
// hold it; used by callers composing several field reads into one critical
// section instead of paying for Value's own lock round trip.
func (e *Entry[K, V]) RawValue() V { return e.value }

// RawLifecycle reads the lifecycle tag without acquiring the lock. Caller
// must already hold it.
func (e *Entry[K, V]) RawLifecycle() Lifecycle { return e.lifecycle }

// Lifecycle returns the current lifecycle tag.
func (e *Entry[K, V]) Lifecycle() Lifecycle {
	e.mu.Lock()
	l := e.lifecycle
	e.mu.Unlock()
	return l
}

// MarkRetired transitions ALIVE -> RETIRED. Caller must hold the lock.
func (e *Entry[K, V]) MarkRetired() { e.lifecycle = Retired }

// MarkDead transitions RETIRED -> DEAD. Caller must hold the lock.
func (e *Entry[K, V]) MarkDead() { e.lifecycle = Dead }

// TryMarkNotified reports true exactly once per entry instance: the
// guarantee backing spec §3's "external removal notification occurs
// exactly once". Caller must hold the lock.
func (e *Entry[K, V]) TryMarkNotified() bool {
	if e.notified {
		return false
	}
	e.notified = true
	return true
}

// TryStartRefresh CASes the refresh-in-flight flag from false to true.
// Caller must hold the lock.
func (e *Entry[K, V]) TryStartRefresh() bool {
	if e.refreshInFlight {
		return false
	}
	e.refreshInFlight = true
	return true
}

// FinishRefresh clears the refresh-in-flight flag. Caller must hold the
// lock.
func (e *Entry[K, V]) FinishRefresh() { e.refreshInFlight = false }

// InAccessOrder reports whether the entry is linked into an access-order
// deque: exact O(1), since the node's own fields identify linkage
// (spec §4.4).
func (e *Entry[K, V]) InAccessOrder() bool {
	return e.AccessPrev != nil || e.AccessNext != nil
}

// InWriteOrder reports whether the entry is linked into a write-order
// deque.
func (e *Entry[K, V]) InWriteOrder() bool {
	return e.WritePrev != nil || e.WriteNext != nil
}

// InWheel reports whether the entry is scheduled in the timer wheel.
func (e *Entry[K, V]) InWheel() bool {
	return e.WheelLevel >= 0
}
