/*
Package wtlfu implements an in-process, concurrent, bounded key-value
cache using the Window-TinyLFU admission and eviction policy.

# Architecture

A Cache is four cooperating pieces:

  - internal/table's EntryTable: a sharded concurrent map giving O(1)
    reads and a per-key critical section for mutations.
  - internal/policy's Engine: the Window-TinyLFU policy itself — an eden
    segment plus main-probation/main-protected segments, a frequency
    sketch for admission, expiration bookkeeping, and the eviction
    cascade.
  - internal/buffers' StripedReadBuffer and WriteBuffer: lossy and
    lossless queues that record reads and writes without making every
    caller fight over the policy's internal structures.
  - internal/maintenance's Scheduler: a drain-status state machine that
    coalesces concurrent drain requests into a single exclusive pass
    applying the buffered reads and writes to the policy.

Reads and writes apply to the EntryTable (and, for writes, the per-entry
critical section) immediately; their effect on eviction order is applied
asynchronously the next time a maintenance pass drains the buffers. This
keeps the hot path's latency independent of cache size or policy
complexity.

# Weak references

WeakValueCache and WeakKeyCache let entries become eligible for removal
once nothing outside the cache still holds a strong reference to the
key or value. Both are built directly on Cache instantiated with
weak.Pointer[T] as the key or value type rather than a parallel
implementation, since weak.Pointer already has the reference-identity
equality a weak or soft reference needs.

# Configuration

Every capability is a functional Option passed to New: bounding by
entry count or weight, expiration (access/write/variable), refresh,
statistics, a removal listener, a writer hook, an executor for
background work, and a structured logger for failures that must never
propagate to the caller.
*/
package wtlfu
