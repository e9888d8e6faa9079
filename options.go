package wtlfu

import (
	"time"

	"github.com/tempuscache/wtlfu/internal/maintenance"
	"github.com/tempuscache/wtlfu/internal/node"
	"github.com/tempuscache/wtlfu/internal/xlog"
)

// Option configures a Cache[K,V] at construction time, in the spirit of
// the teacher's options.go functional-options pattern, extended to cover
// every capability flag spec §6 lists.
type Option[K comparable, V any] func(*config[K, V])

// ExpiryCalculator lets a cache compute a per-entry variable expiry
// deadline on creation, update, and read (spec §4.5/§6 "expiry").
// Returning a duration <= 0 means "do not expire via the timer wheel".
type ExpiryCalculator[K comparable, V any] interface {
	ExpireAfterCreate(key K, value V) time.Duration
	ExpireAfterUpdate(key K, value V, currentDuration time.Duration) time.Duration
	ExpireAfterRead(key K, value V, currentDuration time.Duration) time.Duration
}

// RemovalCause is why an entry left the cache.
type RemovalCause = node.RemovalCause

const (
	CauseExplicit  = node.CauseExplicit
	CauseReplaced  = node.CauseReplaced
	CauseCollected = node.CauseCollected
	CauseExpired   = node.CauseExpired
	CauseSize      = node.CauseSize
)

type config[K comparable, V any] struct {
	maximumSize, maximumWeight        int
	sizeSet, weightSet                bool
	initialCapacity                   int
	weigher                           func(K, V) int
	expireAfterAccess, expireAfterWrite time.Duration
	refreshAfterWrite                 time.Duration
	expiry                            ExpiryCalculator[K, V]
	recordStats                       bool
	removalListener                   func(K, V, RemovalCause)
	writer                            func(K, V, RemovalCause) error
	loader                            func(K) (V, error)
	executor                          maintenance.Executor
	ticker                            func() int64
	logger                            *xlog.Logger
	autoCleanupInterval               time.Duration
}

func newConfig[K comparable, V any]() *config[K, V] {
	return &config[K, V]{
		maximumSize: -1,
		ticker:      func() int64 { return time.Now().UnixNano() },
	}
}

// WithMaximumSize bounds the cache by entry count (weight 1 per entry).
// Mutually exclusive with WithMaximumWeight.
func WithMaximumSize[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		c.maximumSize = n
		c.sizeSet = true
	}
}

// WithMaximumWeight bounds the cache by the sum of Weigher-computed
// weights. Mutually exclusive with WithMaximumSize; requires WithWeigher.
func WithMaximumWeight[K comparable, V any](w int) Option[K, V] {
	return func(c *config[K, V]) {
		c.maximumWeight = w
		c.weightSet = true
	}
}

// WithInitialCapacity sizes the backing EntryTable's shards up front.
// Currently advisory: internal/table sizes shards from GOMAXPROCS
// regardless, so this is accepted for API compatibility and future use.
func WithInitialCapacity[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) { c.initialCapacity = n }
}

// WithWeigher supplies a per-(key,value) weight function. Required when
// using WithMaximumWeight.
func WithWeigher[K comparable, V any](weigher func(K, V) int) Option[K, V] {
	return func(c *config[K, V]) { c.weigher = weigher }
}

// WithExpireAfterAccess enables time-to-idle expiration.
func WithExpireAfterAccess[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.expireAfterAccess = d }
}

// WithExpireAfterWrite enables time-to-live expiration.
func WithExpireAfterWrite[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.expireAfterWrite = d }
}

// WithRefreshAfterWrite enables background refresh via WithLoader once an
// entry is older than d (spec §4.7).
func WithRefreshAfterWrite[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.refreshAfterWrite = d }
}

// WithExpiry enables variable per-entry expiry via the timer wheel,
// driven by the supplied calculator (spec §4.5/§6).
func WithExpiry[K comparable, V any](calc ExpiryCalculator[K, V]) Option[K, V] {
	return func(c *config[K, V]) { c.expiry = calc }
}

// WithRecordStats turns on the Stats() accounting; off by default since
// atomic increments cost something on every request.
func WithRecordStats[K comparable, V any]() Option[K, V] {
	return func(c *config[K, V]) { c.recordStats = true }
}

// WithRemovalListener registers a callback invoked after an entry's DEAD
// transition (spec §3, §4.10: exceptions are logged and swallowed).
func WithRemovalListener[K comparable, V any](fn func(K, V, RemovalCause)) Option[K, V] {
	return func(c *config[K, V]) { c.removalListener = fn }
}

// WithWriter registers a hook invoked inside the per-entry critical
// section before a value replacement is published (spec §4.7). A non-nil
// error aborts the mutation and is returned to the caller.
func WithWriter[K comparable, V any](fn func(K, V, RemovalCause) error) Option[K, V] {
	return func(c *config[K, V]) { c.writer = fn }
}

// WithLoader supplies the function refresh-after-write calls to recompute
// a value.
func WithLoader[K comparable, V any](fn func(K) (V, error)) Option[K, V] {
	return func(c *config[K, V]) { c.loader = fn }
}

// WithExecutor supplies the task executor used for maintenance dispatch
// and removal-notification delivery. Defaults to maintenance.Goroutine.
func WithExecutor[K comparable, V any](executor maintenance.Executor) Option[K, V] {
	return func(c *config[K, V]) { c.executor = executor }
}

// WithTicker overrides the nanosecond clock source (tests use this to
// drive expiration deterministically; spec §6 "ticker").
func WithTicker[K comparable, V any](now func() int64) Option[K, V] {
	return func(c *config[K, V]) { c.ticker = now }
}

// WithLogger supplies a structured logger for the events spec §4.10 calls
// "logged" (listener/loader failures, executor rejection). Silent by
// default.
func WithLogger[K comparable, V any](log *xlog.Logger) Option[K, V] {
	return func(c *config[K, V]) { c.logger = log }
}

// WithAutoCleanupInterval starts a background ticker that forces a
// maintenance pass every d, bounding memory growth in caches that go
// idle rather than relying solely on the next read or write to trigger
// reclamation. Off by default; Cache.Close stops it.
func WithAutoCleanupInterval[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.autoCleanupInterval = d }
}
