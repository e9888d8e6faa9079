package wtlfu

import (
	"fmt"

	"github.com/tempuscache/wtlfu/internal/buffers"
	"github.com/tempuscache/wtlfu/internal/node"
	"github.com/tempuscache/wtlfu/internal/xlog"
)

// enqueueTask hands t to the write buffer and requests a drain (spec
// §4.3/§4.8). If the buffer is fully saturated even after its own internal
// growth attempts, the producing thread forces a synchronous drain to make
// room; if that still isn't enough it runs t itself under the policy lock
// rather than lose the mutation.
func (c *Cache[K, V]) enqueueTask(t buffers.Task) {
	if !c.writeBuf.Add(t) {
		c.sched.RunNow()
		if !c.writeBuf.Add(t) {
			c.sched.RunLocked(t)
			c.sched.AfterWrite()
			return
		}
	}
	c.sched.AfterWrite()
}

// addTask links a freshly created entry into the policy's queues.
func (c *Cache[K, V]) addTask(entry *node.Entry[K, V]) buffers.Task {
	return func() { c.policy.OnAdd(entry) }
}

// updateTask re-accounts entry's weight and re-orders it after a value
// replacement.
func (c *Cache[K, V]) updateTask(entry *node.Entry[K, V], newWeight int) buffers.Task {
	return func() {
		c.policy.UpdateWeight(entry, newWeight)
		c.policy.OnWrite(entry)
	}
}

// removalTask unlinks entry from every policy structure and finalizes its
// lifecycle to DEAD, used for explicit removals where the table entry was
// already detached synchronously at the removal decision (Remove,
// RemoveIf, ComputeIfPresent, Merge) but the policy linkage is still
// pending drain.
func (c *Cache[K, V]) removalTask(entry *node.Entry[K, V], cause node.RemovalCause) buffers.Task {
	return func() {
		c.policy.Unlink(entry)
		c.finishDead(entry, cause)
	}
}

// finishDead transitions entry to DEAD, records eviction stats, and
// dispatches the removal listener at most once (spec §3: "external removal
// notification occurs exactly once"). Used both by removalTask and by the
// maintenance cycle's own expiration/eviction notify callbacks, which have
// already unlinked entry from the policy themselves.
func (c *Cache[K, V]) finishDead(entry *node.Entry[K, V], cause node.RemovalCause) {
	entry.Lock()
	if entry.RawLifecycle() == node.Alive {
		entry.MarkRetired()
	}
	entry.MarkDead()
	notify := entry.TryMarkNotified()
	value := entry.RawValue()
	entry.Unlock()

	if cause.WasEvicted() {
		c.stats.recordEviction(entry.PolicyWeight)
	}
	if notify && c.removalListener != nil {
		c.dispatchListener(entry.Key, value, cause)
	}
}

// dispatchListener runs the removal listener on the configured executor,
// logging (never propagating) both a panic and an executor rejection
// (spec §4.10: "removal listener exceptions are logged; they never fail
// the cache operation").
func (c *Cache[K, V]) dispatchListener(key K, value V, cause node.RemovalCause) {
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				xlog.ListenerFailure(c.log, fmt.Sprint(key), cause.String(), fmt.Errorf("%v", r))
			}
		}()
		c.removalListener(key, value, cause)
	}
	if !c.executor(run) {
		xlog.ExecutorRejected(c.log, `removal-listener`, `dropped`)
	}
}

// removeWithCause removes key bypassing the configured writer, tagging the
// removal notification with cause. Used internally where the decision to
// remove didn't come from the caller's own Remove/RemoveIf call — notably
// WeakValueCache/WeakKeyCache reclaiming a garbage-collected referent with
// CauseCollected (spec §4.9: collected entries bypass the writer).
func (c *Cache[K, V]) removeWithCause(key K, cause node.RemovalCause) (V, bool) {
	var zero V
	entry, ok := c.table.Get(key)
	if !ok {
		return zero, false
	}
	entry.Lock()
	if entry.RawLifecycle() != node.Alive {
		entry.Unlock()
		return zero, false
	}
	v := entry.RawValue()
	entry.MarkRetired()
	entry.Unlock()

	c.table.DeleteIf(key, entry)
	c.enqueueTask(c.removalTask(entry, cause))
	return v, true
}

// runMaintenanceCycle is the spec §4.8 drain pass: read buffer, then write
// buffer, then the reclaim hook, then expiration, then eviction, in that
// order so a just-written
// entry's expiry/weight is settled before eviction judges it.
func (c *Cache[K, V]) runMaintenanceCycle() {
	now := c.now()

	c.readBuf.DrainTo(func(e *node.Entry[K, V]) {
		if e.Lifecycle() == node.Alive {
			c.policy.RecordAccess(e, e.AccessTimeNanos)
		}
	})

	c.writeBuf.DrainTo(func(t buffers.Task) { t() })

	c.reclaim()

	for _, exp := range c.policy.ExpireEntries(now) {
		c.table.DeleteIf(exp.Entry.Key, exp.Entry)
		c.finishDead(exp.Entry, exp.Cause)
	}

	c.policy.EvictExcess(func(e *node.Entry[K, V], cause node.RemovalCause) {
		c.table.DeleteIf(e.Key, e)
		c.finishDead(e, cause)
	})
}
