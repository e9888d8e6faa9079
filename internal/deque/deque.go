// Package deque implements the two intrusive doubly-linked lists spec §4.4
// calls for: AccessOrderDeque and WriteOrderDeque. Both share the same
// O(1) push-tail/pop-head/remove/move-to-tail shape; they differ only in
// which pair of link fields on node.Entry they thread through, so a single
// generic implementation parameterized over an axis (accessor pair) backs
// both exported constructors.
//
// Grounded on the teacher's use of container/list for LRU order (cache.go,
// eviction.go), generalized to an intrusive list with no per-node
// allocation the way the pack's shardcache/ristretto LRU lists do it.
package deque

import "github.com/tempuscache/wtlfu/internal/node"

// axis is a pair of link accessors. Each deque instance is threaded
// through one of the three link pairs node.Entry carries.
type axis[K comparable, V any] struct {
	prev    func(*node.Entry[K, V]) *node.Entry[K, V]
	setPrev func(*node.Entry[K, V], *node.Entry[K, V])
	next    func(*node.Entry[K, V]) *node.Entry[K, V]
	setNext func(*node.Entry[K, V], *node.Entry[K, V])
}

// Deque is an intrusive doubly-linked list over one axis of node.Entry
// links. The zero value is not usable; construct with New.
type Deque[K comparable, V any] struct {
	ax         axis[K, V]
	head, tail *node.Entry[K, V] // sentinels, never real entries
	len        int
}

func newDeque[K comparable, V any](ax axis[K, V]) *Deque[K, V] {
	d := &Deque[K, V]{ax: ax}
	d.head = new(node.Entry[K, V])
	d.tail = new(node.Entry[K, V])
	ax.setNext(d.head, d.tail)
	ax.setPrev(d.tail, d.head)
	return d
}

func accessAxis[K comparable, V any]() axis[K, V] {
	return axis[K, V]{
		prev:    func(e *node.Entry[K, V]) *node.Entry[K, V] { return e.AccessPrev },
		setPrev: func(e, v *node.Entry[K, V]) { e.AccessPrev = v },
		next:    func(e *node.Entry[K, V]) *node.Entry[K, V] { return e.AccessNext },
		setNext: func(e, v *node.Entry[K, V]) { e.AccessNext = v },
	}
}

func writeAxis[K comparable, V any]() axis[K, V] {
	return axis[K, V]{
		prev:    func(e *node.Entry[K, V]) *node.Entry[K, V] { return e.WritePrev },
		setPrev: func(e, v *node.Entry[K, V]) { e.WritePrev = v },
		next:    func(e *node.Entry[K, V]) *node.Entry[K, V] { return e.WriteNext },
		setNext: func(e, v *node.Entry[K, V]) { e.WriteNext = v },
	}
}

// NewAccessOrder builds an AccessOrderDeque: tail is most recently used.
func NewAccessOrder[K comparable, V any]() *Deque[K, V] { return newDeque[K, V](accessAxis[K, V]()) }

// NewWriteOrder builds a WriteOrderDeque: tail is most recently written.
func NewWriteOrder[K comparable, V any]() *Deque[K, V] { return newDeque[K, V](writeAxis[K, V]()) }

// Len returns the number of linked entries.
func (d *Deque[K, V]) Len() int { return d.len }

// Contains is the node-identifies-its-own-linkage fast path from spec
// §4.4: exact O(1) because an unlinked entry has nil prev on this axis.
func (d *Deque[K, V]) Contains(e *node.Entry[K, V]) bool {
	return d.ax.prev(e) != nil || e == d.head || e == d.tail
}

// PushTail links e at the tail (most-recent end). e must not already be
// linked on this axis.
func (d *Deque[K, V]) PushTail(e *node.Entry[K, V]) {
	last := d.ax.prev(d.tail)
	d.ax.setNext(last, e)
	d.ax.setPrev(e, last)
	d.ax.setNext(e, d.tail)
	d.ax.setPrev(d.tail, e)
	d.len++
}

// PopHead unlinks and returns the head (least-recent) entry, or nil if
// the deque is empty.
func (d *Deque[K, V]) PopHead() *node.Entry[K, V] {
	first := d.ax.next(d.head)
	if first == d.tail {
		return nil
	}
	d.unlink(first)
	return first
}

// Peek returns the head entry without unlinking it, or nil if empty.
func (d *Deque[K, V]) Peek() *node.Entry[K, V] {
	first := d.ax.next(d.head)
	if first == d.tail {
		return nil
	}
	return first
}

// PeekTail returns the tail entry without unlinking it, or nil if empty.
func (d *Deque[K, V]) PeekTail() *node.Entry[K, V] {
	last := d.ax.prev(d.tail)
	if last == d.head {
		return nil
	}
	return last
}

// Remove unlinks e from wherever it sits in the deque. No-op if e is not
// currently linked on this axis.
func (d *Deque[K, V]) Remove(e *node.Entry[K, V]) {
	if d.ax.prev(e) == nil && d.ax.next(e) == nil {
		return
	}
	d.unlink(e)
}

// MoveToTail relinks e at the tail, whether or not it was already linked.
func (d *Deque[K, V]) MoveToTail(e *node.Entry[K, V]) {
	d.Remove(e)
	d.PushTail(e)
}

func (d *Deque[K, V]) unlink(e *node.Entry[K, V]) {
	prev, next := d.ax.prev(e), d.ax.next(e)
	d.ax.setNext(prev, next)
	d.ax.setPrev(next, prev)
	d.ax.setPrev(e, nil)
	d.ax.setNext(e, nil)
	d.len--
}

// Next returns the entry linked immediately after e (toward the tail), or
// nil if e is the last linked entry. e must currently be linked in this
// deque.
func (d *Deque[K, V]) Next(e *node.Entry[K, V]) *node.Entry[K, V] {
	n := d.ax.next(e)
	if n == d.tail {
		return nil
	}
	return n
}

// Prev returns the entry linked immediately before e (toward the head), or
// nil if e is the first linked entry. e must currently be linked in this
// deque.
func (d *Deque[K, V]) Prev(e *node.Entry[K, V]) *node.Entry[K, V] {
	p := d.ax.prev(e)
	if p == d.head {
		return nil
	}
	return p
}

// Each calls fn for every linked entry from head to tail. fn must not
// mutate the deque.
func (d *Deque[K, V]) Each(fn func(*node.Entry[K, V])) {
	for e := d.ax.next(d.head); e != d.tail; e = d.ax.next(e) {
		fn(e)
	}
}

// EachReverse calls fn for every linked entry from tail to head.
func (d *Deque[K, V]) EachReverse(fn func(*node.Entry[K, V])) {
	for e := d.ax.prev(d.tail); e != d.head; e = d.ax.prev(e) {
		fn(e)
	}
}
