// Package wtlfu implements an in-process, concurrent, bounded key-value
// cache built around the Window-TinyLFU admission/eviction policy: a
// striped lossy read buffer and a growable lossless write buffer decouple
// the hot paths from policy bookkeeping, which a single exclusive
// maintenance pass applies under a state machine that coalesces concurrent
// drain requests (internal/maintenance).
package wtlfu

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tempuscache/wtlfu/internal/buffers"
	"github.com/tempuscache/wtlfu/internal/maintenance"
	"github.com/tempuscache/wtlfu/internal/node"
	"github.com/tempuscache/wtlfu/internal/policy"
	"github.com/tempuscache/wtlfu/internal/table"
	"github.com/tempuscache/wtlfu/internal/xlog"
)

// Cache is a concurrent, bounded key-value store. The zero value is not
// usable; construct with New.
type Cache[K comparable, V any] struct {
	table    *table.Table[K, V]
	policy   *policy.Engine[K, V]
	readBuf  *buffers.StripedReadBuffer[K, V]
	writeBuf *buffers.WriteBuffer
	sched    *maintenance.Scheduler
	stats    *Stats

	features node.Features

	weigher         func(K, V) int
	removalListener func(K, V, RemovalCause)
	writer          func(K, V, RemovalCause) error
	loader          func(K) (V, error)
	expiry          ExpiryCalculator[K, V]

	expireAfterAccessNanos int64
	expireAfterWriteNanos  int64
	refreshAfterWriteNanos int64

	executor maintenance.Executor
	now      func() int64
	log      *xlog.Logger

	// sf coalesces concurrent refresh-after-write loader invocations for
	// the same key: entry.TryStartRefresh already ensures at most one
	// refresh is in flight per entry, but sf additionally collapses the
	// rare case of overlapping refreshes across a replaced entry for the
	// same key into a single loader call (spec §4.7: "the thread that wins
	// invokes the user loader").
	sf singleflight.Group

	// reclaim is polled once per maintenance cycle; the base Cache leaves
	// it a no-op, but WeakValueCache/WeakKeyCache install a closure here
	// that drains their reference.Collector and evicts COLLECTED entries.
	reclaim func()

	closer    *janitor
	closeOnce sync.Once
}

// New constructs a Cache per the supplied options. An error is returned
// only for invalid configuration (e.g. both WithMaximumSize and
// WithMaximumWeight, WithMaximumWeight without WithWeigher, or a negative
// maximum); individual
// operations never fail due to configuration afterward.
func New[K comparable, V any](opts ...Option[K, V]) (*Cache[K, V], error) {
	cfg := newConfig[K, V]()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.sizeSet && cfg.weightSet {
		return nil, configError("both maximum size and maximum weight configured; they are mutually exclusive")
	}
	if cfg.weightSet && cfg.weigher == nil {
		return nil, configError("maximum weight requires a weigher")
	}

	maximum := -1
	switch {
	case cfg.sizeSet:
		if cfg.maximumSize < 0 {
			return nil, configError("negative maximum size")
		}
		maximum = cfg.maximumSize
	case cfg.weightSet:
		if cfg.maximumWeight < 0 {
			return nil, configError("negative maximum weight")
		}
		maximum = cfg.maximumWeight
	}

	var features node.Features
	if cfg.expireAfterAccess > 0 {
		features |= node.FeatureExpireAfterAccess
	}
	if cfg.expireAfterWrite > 0 {
		features |= node.FeatureExpireAfterWrite
	}
	if cfg.refreshAfterWrite > 0 {
		features |= node.FeatureRefreshAfterWrite
	}
	if cfg.expiry != nil {
		features |= node.FeatureVariableExpiry
	}
	if cfg.weigher != nil {
		features |= node.FeatureWeigher
	}

	executor := cfg.executor
	if executor == nil {
		executor = maintenance.Goroutine
	}

	tbl := table.New[K, V]()
	now := cfg.ticker()
	eng := policy.New[K, V](features, tbl.HashOf, maximum,
		cfg.expireAfterAccess.Nanoseconds(), cfg.expireAfterWrite.Nanoseconds(), now)

	c := &Cache[K, V]{
		table:                  tbl,
		policy:                 eng,
		readBuf:                buffers.NewStripedReadBuffer[K, V](),
		writeBuf:               buffers.NewWriteBuffer(),
		features:               features,
		weigher:                cfg.weigher,
		removalListener:        cfg.removalListener,
		writer:                 cfg.writer,
		loader:                 cfg.loader,
		expiry:                 cfg.expiry,
		expireAfterAccessNanos: cfg.expireAfterAccess.Nanoseconds(),
		expireAfterWriteNanos:  cfg.expireAfterWrite.Nanoseconds(),
		refreshAfterWriteNanos: cfg.refreshAfterWrite.Nanoseconds(),
		executor:               executor,
		now:                    cfg.ticker,
		log:                    cfg.logger,
		reclaim:                func() {},
	}
	if cfg.recordStats {
		c.stats = &Stats{}
	}
	c.sched = maintenance.New(c.runMaintenanceCycle, executor, cfg.logger)

	if cfg.autoCleanupInterval > 0 {
		c.closer = startJanitor(c.CleanUp, cfg.autoCleanupInterval)
	}

	return c, nil
}

// Get looks up key, returning its value and true if present, alive, and
// unexpired. A lazily-discovered expiry triggers the same removal path a
// maintenance sweep would (spec §4.5: "may also be discovered lazily on a
// read").
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	entry, ok := c.table.Get(key)
	if !ok {
		c.stats.recordMiss()
		return zero, false
	}

	now := c.now()
	entry.Lock()
	if entry.RawLifecycle() != node.Alive {
		entry.Unlock()
		c.stats.recordMiss()
		return zero, false
	}
	if c.isExpired(entry, now) {
		entry.Unlock()
		c.expireNow(key, entry)
		c.stats.recordMiss()
		return zero, false
	}
	value := entry.RawValue()
	entry.AccessTimeNanos = now
	rescheduled := c.refreshVarExpiryOnRead(entry, now)
	entry.Unlock()

	c.stats.recordHit()
	if rescheduled {
		c.enqueueTask(func() { c.policy.RescheduleVarExpiry(entry) })
	}
	if c.policy.SketchInitialized() {
		status := c.readBuf.Offer(entry)
		c.sched.AfterRead(status == buffers.ReadFull)
	}
	if c.features.Has(node.FeatureRefreshAfterWrite) {
		c.maybeRefresh(key, entry, now)
	}
	return value, true
}

// GetIfPresent is an alias for Get: this port has no get-time loader, only
// a refresh-after-write loader, so the two spec §6 operations coincide.
func (c *Cache[K, V]) GetIfPresent(key K) (V, bool) { return c.Get(key) }

// GetAllPresent looks up every key in keys, returning only the ones found.
func (c *Cache[K, V]) GetAllPresent(keys []K) map[K]V {
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

func (c *Cache[K, V]) expireNow(key K, entry *node.Entry[K, V]) {
	entry.Lock()
	if entry.RawLifecycle() == node.Alive {
		entry.MarkRetired()
	}
	entry.Unlock()
	c.table.DeleteIf(key, entry)
	c.enqueueTask(c.removalTask(entry, node.CauseExpired))
}

func (c *Cache[K, V]) maybeRefresh(key K, entry *node.Entry[K, V], now int64) {
	if c.loader == nil {
		return
	}
	entry.Lock()
	due := now-entry.WriteTimeNanos > c.refreshAfterWriteNanos
	started := false
	if due && entry.RawLifecycle() == node.Alive {
		started = entry.TryStartRefresh()
	}
	entry.Unlock()
	if !started {
		return
	}

	run := func() {
		start := c.now()
		sfKey := fmt.Sprint(key)
		v, err, _ := c.sf.Do(sfKey, func() (any, error) { return c.loader(key) })
		newValue, _ := v.(V)
		elapsed := c.now() - start

		entry.Lock()
		entry.FinishRefresh()
		if entry.RawLifecycle() != node.Alive {
			entry.Unlock()
			return
		}
		if err != nil {
			entry.Unlock()
			c.stats.recordLoadFailure(elapsed)
			xlog.LoaderFailure(c.log, fmt.Sprint(key), err)
			return
		}
		entry.SetValue(newValue)
		entry.WriteTimeNanos = c.now()
		newWeight := entry.Weight
		if c.weigher != nil {
			if w := c.weigher(key, newValue); w >= 0 {
				newWeight = w
			}
		}
		entry.Weight = newWeight
		entry.Unlock()

		c.stats.recordLoadSuccess(elapsed)
		c.enqueueTask(c.updateTask(entry, newWeight))
	}
	if !c.executor(run) {
		xlog.ExecutorRejected(c.log, `refresh`, `aborted`)
		entry.Lock()
		entry.FinishRefresh()
		entry.Unlock()
	}
}

// Put inserts or replaces key's value. A non-nil error means the weigher
// returned a negative weight or the configured writer rejected the
// mutation; the cache is left unchanged.
func (c *Cache[K, V]) Put(key K, value V) error {
	now := c.now()
	weight, err := c.resolveWeight(key, value)
	if err != nil {
		return err
	}

	for {
		entry, loaded := c.table.LoadOrStore(key, func() *node.Entry[K, V] {
			return c.buildEntry(key, value, weight, now)
		})
		if !loaded {
			c.enqueueTask(c.addTask(entry))
			return nil
		}

		entry.Lock()
		if entry.RawLifecycle() != node.Alive {
			entry.Unlock()
			continue
		}
		if c.writer != nil {
			if err := c.writer(key, value, CauseReplaced); err != nil {
				entry.Unlock()
				return writerError(err)
			}
		}
		entry.SetValue(value)
		entry.WriteTimeNanos = now
		entry.Weight = weight
		c.refreshVarExpiryOnUpdate(entry, value, now)
		entry.Unlock()

		c.enqueueTask(c.updateTask(entry, weight))
		return nil
	}
}

// PutIfAbsent stores value under key only if key is not already present.
// actual is the value now associated with key (either the one just
// stored, or the pre-existing one); stored reports which.
func (c *Cache[K, V]) PutIfAbsent(key K, value V) (actual V, stored bool, err error) {
	now := c.now()
	weight, err := c.resolveWeight(key, value)
	if err != nil {
		var zero V
		return zero, false, err
	}

	for {
		entry, loaded := c.table.LoadOrStore(key, func() *node.Entry[K, V] {
			return c.buildEntry(key, value, weight, now)
		})
		if !loaded {
			c.enqueueTask(c.addTask(entry))
			return value, true, nil
		}
		entry.Lock()
		if entry.RawLifecycle() != node.Alive {
			entry.Unlock()
			continue
		}
		v := entry.RawValue()
		entry.Unlock()
		return v, false, nil
	}
}

// PutAll stores every entry in m, aborting on the first writer rejection.
func (c *Cache[K, V]) PutAll(m map[K]V) error {
	for k, v := range m {
		if err := c.Put(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Replace stores value under key only if key is already present and
// alive; replaced reports whether that held.
func (c *Cache[K, V]) Replace(key K, value V) (replaced bool, err error) {
	now := c.now()
	weight, err := c.resolveWeight(key, value)
	if err != nil {
		return false, err
	}

	entry, ok := c.table.Get(key)
	if !ok {
		return false, nil
	}
	entry.Lock()
	if entry.RawLifecycle() != node.Alive {
		entry.Unlock()
		return false, nil
	}
	if c.writer != nil {
		if err := c.writer(key, value, CauseReplaced); err != nil {
			entry.Unlock()
			return false, writerError(err)
		}
	}
	entry.SetValue(value)
	entry.WriteTimeNanos = now
	entry.Weight = weight
	c.refreshVarExpiryOnUpdate(entry, value, now)
	entry.Unlock()

	c.enqueueTask(c.updateTask(entry, weight))
	return true, nil
}

// ReplaceAll applies fn to every currently-present key, replacing its
// value with fn's result. Keys added or removed concurrently while this
// runs may or may not be visited.
func (c *Cache[K, V]) ReplaceAll(fn func(K, V) V) error {
	var keys []K
	c.table.Range(func(k K, _ *node.Entry[K, V]) bool { keys = append(keys, k); return true })
	for _, k := range keys {
		entry, ok := c.table.Get(k)
		if !ok {
			continue
		}
		v := entry.Value()
		if _, err := c.Replace(k, fn(k, v)); err != nil {
			return err
		}
	}
	return nil
}

// Remove unconditionally removes key, returning its last value and true
// if it was present and alive.
func (c *Cache[K, V]) Remove(key K) (value V, removed bool, err error) {
	var zero V
	entry, ok := c.table.Get(key)
	if !ok {
		return zero, false, nil
	}
	entry.Lock()
	if entry.RawLifecycle() != node.Alive {
		entry.Unlock()
		return zero, false, nil
	}
	v := entry.RawValue()
	if c.writer != nil {
		if err := c.writer(key, v, CauseExplicit); err != nil {
			entry.Unlock()
			return zero, false, writerError(err)
		}
	}
	entry.MarkRetired()
	entry.Unlock()

	c.table.DeleteIf(key, entry)
	c.enqueueTask(c.removalTask(entry, CauseExplicit))
	return v, true, nil
}

// RemoveIf removes key only if its current value equals expect under the
// supplied equal function.
func (c *Cache[K, V]) RemoveIf(key K, expect V, equal func(a, b V) bool) (removed bool, err error) {
	entry, ok := c.table.Get(key)
	if !ok {
		return false, nil
	}
	entry.Lock()
	if entry.RawLifecycle() != node.Alive {
		entry.Unlock()
		return false, nil
	}
	v := entry.RawValue()
	if !equal(v, expect) {
		entry.Unlock()
		return false, nil
	}
	if c.writer != nil {
		if err := c.writer(key, v, CauseExplicit); err != nil {
			entry.Unlock()
			return false, writerError(err)
		}
	}
	entry.MarkRetired()
	entry.Unlock()

	c.table.DeleteIf(key, entry)
	c.enqueueTask(c.removalTask(entry, CauseExplicit))
	return true, nil
}

// Compute remaps key: remap receives the current value (zero if absent)
// and whether it was found, and returns the new value plus whether to
// keep it (false removes/no-ops the key). A present key is remapped under
// its entry lock via ComputeIfPresent. The absent-key branch is not
// atomic: remap runs unlocked and the result is stored with Put, which
// overwrites any value inserted for key concurrently in between.
func (c *Cache[K, V]) Compute(key K, remap func(key K, old V, found bool) (newValue V, keep bool)) (V, bool, error) {
	entry, ok := c.table.Get(key)
	if !ok {
		var zero V
		newValue, keep := remap(key, zero, false)
		if !keep {
			return zero, false, nil
		}
		if err := c.Put(key, newValue); err != nil {
			return zero, false, err
		}
		return newValue, true, nil
	}
	return c.ComputeIfPresent(key, func(k K, old V) (V, bool) { return remap(k, old, true) })
}

// ComputeIfAbsent atomically stores fn(key)'s result under key only if
// key is not already present, returning the value now associated with it
// either way. The loader runs inside the table shard's critical section,
// so a slow fn blocks other keys hashing to the same shard; callers with
// expensive loaders should keep them fast or use WithLoader's
// refresh-after-write path instead.
func (c *Cache[K, V]) ComputeIfAbsent(key K, fn func(K) (V, error)) (V, error) {
	now := c.now()
	for {
		var computeErr error
		entry, loaded := c.table.LoadOrStore(key, func() *node.Entry[K, V] {
			v, err := fn(key)
			if err != nil {
				computeErr = err
				placeholder := node.New(key, v, 0, c.features)
				placeholder.Lock()
				placeholder.MarkRetired()
				placeholder.Unlock()
				return placeholder
			}
			weight, werr := c.resolveWeight(key, v)
			if werr != nil {
				computeErr = werr
				placeholder := node.New(key, v, 0, c.features)
				placeholder.Lock()
				placeholder.MarkRetired()
				placeholder.Unlock()
				return placeholder
			}
			return c.buildEntry(key, v, weight, now)
		})
		if computeErr != nil {
			if !loaded {
				c.table.DeleteIf(key, entry)
			}
			var zero V
			return zero, computeErr
		}
		if !loaded {
			c.enqueueTask(c.addTask(entry))
			return entry.Value(), nil
		}
		entry.Lock()
		if entry.RawLifecycle() != node.Alive {
			entry.Unlock()
			continue
		}
		v := entry.RawValue()
		entry.Unlock()
		return v, nil
	}
}

// ComputeIfPresent atomically remaps key's value if currently present and
// alive; fn returning keep=false removes the entry (with cause EXPLICIT).
func (c *Cache[K, V]) ComputeIfPresent(key K, fn func(K, V) (newValue V, keep bool)) (V, bool, error) {
	now := c.now()
	var zero V

	entry, ok := c.table.Get(key)
	if !ok {
		return zero, false, nil
	}
	entry.Lock()
	if entry.RawLifecycle() != node.Alive {
		entry.Unlock()
		return zero, false, nil
	}
	old := entry.RawValue()
	newValue, keep := fn(key, old)

	if !keep {
		if c.writer != nil {
			if err := c.writer(key, old, CauseExplicit); err != nil {
				entry.Unlock()
				return zero, false, writerError(err)
			}
		}
		entry.MarkRetired()
		entry.Unlock()
		c.table.DeleteIf(key, entry)
		c.enqueueTask(c.removalTask(entry, CauseExplicit))
		return zero, false, nil
	}

	weight, err := c.resolveWeight(key, newValue)
	if err != nil {
		entry.Unlock()
		return zero, false, err
	}
	if c.writer != nil {
		if err := c.writer(key, newValue, CauseReplaced); err != nil {
			entry.Unlock()
			return zero, false, writerError(err)
		}
	}
	entry.SetValue(newValue)
	entry.WriteTimeNanos = now
	entry.Weight = weight
	c.refreshVarExpiryOnUpdate(entry, newValue, now)
	entry.Unlock()

	c.enqueueTask(c.updateTask(entry, weight))
	return newValue, true, nil
}

// Merge combines value into key's current mapping via fn(old, new); if key
// is absent, value is stored directly. fn returning keep=false removes
// the key.
func (c *Cache[K, V]) Merge(key K, value V, fn func(oldValue, newValue V) (merged V, keep bool)) (V, error) {
	now := c.now()
	weight, err := c.resolveWeight(key, value)
	if err != nil {
		var zero V
		return zero, err
	}

	for {
		entry, loaded := c.table.LoadOrStore(key, func() *node.Entry[K, V] {
			return c.buildEntry(key, value, weight, now)
		})
		if !loaded {
			c.enqueueTask(c.addTask(entry))
			return value, nil
		}

		entry.Lock()
		if entry.RawLifecycle() != node.Alive {
			entry.Unlock()
			continue
		}
		old := entry.RawValue()
		merged, keep := fn(old, value)
		if !keep {
			entry.MarkRetired()
			entry.Unlock()
			c.table.DeleteIf(key, entry)
			c.enqueueTask(c.removalTask(entry, CauseExplicit))
			var zero V
			return zero, nil
		}

		mergedWeight, werr := c.resolveWeight(key, merged)
		if werr != nil {
			entry.Unlock()
			var zero V
			return zero, werr
		}
		entry.SetValue(merged)
		entry.WriteTimeNanos = now
		entry.Weight = mergedWeight
		c.refreshVarExpiryOnUpdate(entry, merged, now)
		entry.Unlock()

		c.enqueueTask(c.updateTask(entry, mergedWeight))
		return merged, nil
	}
}

// EstimatedSize returns an approximate entry count (spec §6); concurrent
// mutations may make it momentarily stale.
func (c *Cache[K, V]) EstimatedSize() int { return c.table.Len() }

// CleanUp forces an immediate, synchronous maintenance pass.
func (c *Cache[K, V]) CleanUp() { c.sched.RunNow() }

// Clear removes every entry, draining the write buffer first so no
// in-flight add survives it (spec §5: clear acquires the policy lock).
func (c *Cache[K, V]) Clear() {
	c.sched.RunLocked(func() {
		c.writeBuf.DrainTo(func(t buffers.Task) { t() })

		var all []*node.Entry[K, V]
		c.table.Range(func(_ K, e *node.Entry[K, V]) bool { all = append(all, e); return true })

		for _, e := range all {
			c.table.DeleteIf(e.Key, e)
			c.policy.Unlink(e)
			c.finishDead(e, CauseExplicit)
		}
	})
}

// Maximum returns the configured weighted capacity, or a negative value
// if the cache is unbounded.
func (c *Cache[K, V]) Maximum() int { return c.policy.Maximum() }

// SetMaximum changes the cache's capacity, synchronously evicting any
// resulting excess.
func (c *Cache[K, V]) SetMaximum(n int) {
	c.sched.RunLocked(func() {
		c.policy.SetMaximum(n)
		c.policy.EvictExcess(func(e *node.Entry[K, V], cause node.RemovalCause) {
			c.table.DeleteIf(e.Key, e)
			c.finishDead(e, cause)
		})
	})
}

// Stats returns a point-in-time snapshot of cumulative statistics. Zero
// valued if WithRecordStats was never configured.
func (c *Cache[K, V]) Stats() StatsSnapshot { return c.stats.snapshot() }

func (c *Cache[K, V]) viewLocked(fn func() []K) []K {
	var out []K
	c.sched.RunLocked(func() { out = fn() })
	return out
}

// ColdestN returns up to n keys nearest eviction under TinyLFU admission.
func (c *Cache[K, V]) ColdestN(n int) []K { return c.viewLocked(func() []K { return c.policy.ColdestN(n) }) }

// HottestN returns up to n keys with the highest estimated frequency.
func (c *Cache[K, V]) HottestN(n int) []K { return c.viewLocked(func() []K { return c.policy.HottestN(n) }) }

// OldestByAccess returns up to n least-recently-accessed keys.
func (c *Cache[K, V]) OldestByAccess(n int) []K {
	return c.viewLocked(func() []K { return c.policy.OldestByAccess(n) })
}

// YoungestByAccess returns up to n most-recently-accessed keys.
func (c *Cache[K, V]) YoungestByAccess(n int) []K {
	return c.viewLocked(func() []K { return c.policy.YoungestByAccess(n) })
}

// OldestByWrite returns up to n least-recently-written keys.
func (c *Cache[K, V]) OldestByWrite(n int) []K {
	return c.viewLocked(func() []K { return c.policy.OldestByWrite(n) })
}

// YoungestByWrite returns up to n most-recently-written keys.
func (c *Cache[K, V]) YoungestByWrite(n int) []K {
	return c.viewLocked(func() []K { return c.policy.YoungestByWrite(n) })
}

// OldestByVarExpiry returns up to n keys nearest their variable-expiry
// deadline.
func (c *Cache[K, V]) OldestByVarExpiry(n int) []K {
	return c.viewLocked(func() []K { return c.policy.OldestByVarExpiry(n) })
}

// YoungestByVarExpiry returns up to n keys furthest from their
// variable-expiry deadline.
func (c *Cache[K, V]) YoungestByVarExpiry(n int) []K {
	return c.viewLocked(func() []K { return c.policy.YoungestByVarExpiry(n) })
}

// Close stops the optional auto-cleanup janitor, if WithAutoCleanupInterval
// was configured. Safe to call on a Cache without one; safe to call more
// than once.
func (c *Cache[K, V]) Close() {
	c.closeOnce.Do(func() {
		if c.closer != nil {
			c.closer.stop()
		}
	})
}
