package wtlfu

import (
	"time"

	"github.com/tempuscache/wtlfu/internal/node"
)

// buildEntry constructs a freshly alive entry for key/value at time now,
// with weight already resolved by the caller (Put validates a weigher's
// result before committing, so by the time this runs the weight is known
// good) and the variable-expiry deadline set from the configured
// ExpiryCalculator, if any.
func (c *Cache[K, V]) buildEntry(key K, value V, weight int, now int64) *node.Entry[K, V] {
	e := node.New(key, value, weight, c.features)
	e.AccessTimeNanos = now
	e.WriteTimeNanos = now
	if c.expiry != nil {
		if d := c.expiry.ExpireAfterCreate(key, value); d > 0 {
			e.VarExpireNanos = now + d.Nanoseconds()
		}
	}
	return e
}

// resolveWeight calls the configured weigher, if any, defaulting to 1.
func (c *Cache[K, V]) resolveWeight(key K, value V) (int, error) {
	if c.weigher == nil {
		return 1, nil
	}
	w := c.weigher(key, value)
	if w < 0 {
		return 0, weightError(w)
	}
	return w, nil
}

// refreshVarExpiryOnUpdate recomputes entry's variable-expiry deadline on update,
// using the current remaining duration as the ExpiryCalculator's baseline.
// Caller must hold entry's lock.
func (c *Cache[K, V]) refreshVarExpiryOnUpdate(entry *node.Entry[K, V], value V, now int64) {
	if c.expiry == nil {
		return
	}
	var current time.Duration
	if entry.VarExpireNanos > 0 {
		current = time.Duration(entry.VarExpireNanos - now)
	}
	if d := c.expiry.ExpireAfterUpdate(entry.Key, value, current); d > 0 {
		entry.VarExpireNanos = now + d.Nanoseconds()
	} else {
		entry.VarExpireNanos = 0
	}
}

// refreshVarExpiryOnRead recomputes entry's variable-expiry deadline after
// a read, for caches using WithExpiry's ExpireAfterRead hook (spec §4.5:
// "variable, per-entry deadlines recomputed on create/update/read").
// Caller must hold entry's lock.
func (c *Cache[K, V]) refreshVarExpiryOnRead(entry *node.Entry[K, V], now int64) bool {
	if c.expiry == nil || entry.VarExpireNanos == 0 {
		return false
	}
	current := time.Duration(entry.VarExpireNanos - now)
	d := c.expiry.ExpireAfterRead(entry.Key, entry.RawValue(), current)
	if d <= 0 {
		return false
	}
	next := now + d.Nanoseconds()
	if next == entry.VarExpireNanos {
		return false
	}
	entry.VarExpireNanos = next
	return true
}

// isExpired reports whether entry has passed any of its configured
// deadlines as of now. Caller must hold entry's lock.
func (c *Cache[K, V]) isExpired(entry *node.Entry[K, V], now int64) bool {
	if c.features.Has(node.FeatureExpireAfterAccess) && now-entry.AccessTimeNanos > c.expireAfterAccessNanos {
		return true
	}
	if c.features.Has(node.FeatureExpireAfterWrite) && now-entry.WriteTimeNanos > c.expireAfterWriteNanos {
		return true
	}
	if c.features.Has(node.FeatureVariableExpiry) && entry.VarExpireNanos > 0 && now >= entry.VarExpireNanos {
		return true
	}
	return false
}
