package wtlfu

import (
	"strconv"
	"testing"

	"github.com/tempuscache/wtlfu/internal/maintenance"
)

func benchCache(b *testing.B) *Cache[string, string] {
	b.Helper()
	c, err := New[string, string](WithExecutor[string, string](maintenance.Goroutine))
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	return c
}

// BenchmarkPutSameKey measures the write path when the same key is
// overwritten repeatedly: no table growth, pure per-entry critical section
// plus write-buffer enqueue cost.
func BenchmarkPutSameKey(b *testing.B) {
	c := benchCache(b)
	for i := 0; i < b.N; i++ {
		c.Put("key", "value")
	}
}

// BenchmarkPutUniqueKeys measures the write path under table growth, one
// fresh entry per iteration.
func BenchmarkPutUniqueKeys(b *testing.B) {
	c := benchCache(b)
	keys := make([]string, b.N)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Put(keys[i], "value")
	}
}

// BenchmarkGetHit measures the read path's lock/unlock and read-buffer
// offer cost against a single hot key.
func BenchmarkGetHit(b *testing.B) {
	c := benchCache(b)
	c.Put("key", "value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}

// BenchmarkGetMiss measures the read path when the key is never present.
func BenchmarkGetMiss(b *testing.B) {
	c := benchCache(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("missing")
	}
}

// BenchmarkPutGetParallel exercises both paths under concurrent load,
// spreading b.N iterations across GOMAXPROCS goroutines.
func BenchmarkPutGetParallel(b *testing.B) {
	c := benchCache(b)
	c.Put("key", "value")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Put("key", "value")
			c.Get("key")
		}
	})
}
