package wtlfu

// Stats are cumulative cache statistics, updated by both reader goroutines
// and the maintenance path. Grounded on the teacher's stats.go fields
// (Hits/Misses/Evictions), widened to cover the refresh-after-write load
// accounting spec §4.7/§8 scenario 5 calls for, and moved from the
// teacher's Cache-mutex-protected plain uint64s to sync/atomic counters
// because here the maintenance goroutine and reader goroutines update
// stats concurrently (spec §5: "size counters are published with release
// semantics").
import "sync/atomic"

type Stats struct {
	hits           atomic.Int64
	misses         atomic.Int64
	evictions      atomic.Int64
	evictionWeight atomic.Int64
	loadSuccesses  atomic.Int64
	loadFailures   atomic.Int64
	totalLoadNanos atomic.Int64
}

// StatsSnapshot is an immutable point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits, Misses                int64
	Evictions, EvictionWeight   int64
	LoadSuccesses, LoadFailures int64
	TotalLoadNanos              int64
}

// HitRate returns Hits / (Hits + Misses), or 0 if there have been no
// requests.
func (s StatsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *Stats) recordHit() {
	if s != nil {
		s.hits.Add(1)
	}
}

func (s *Stats) recordMiss() {
	if s != nil {
		s.misses.Add(1)
	}
}

func (s *Stats) recordEviction(weight int) {
	if s != nil {
		s.evictions.Add(1)
		s.evictionWeight.Add(int64(weight))
	}
}

func (s *Stats) recordLoadSuccess(nanos int64) {
	if s != nil {
		s.loadSuccesses.Add(1)
		s.totalLoadNanos.Add(nanos)
	}
}

func (s *Stats) recordLoadFailure(nanos int64) {
	if s != nil {
		s.loadFailures.Add(1)
		s.totalLoadNanos.Add(nanos)
	}
}

func (s *Stats) snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		Evictions:      s.evictions.Load(),
		EvictionWeight: s.evictionWeight.Load(),
		LoadSuccesses:  s.loadSuccesses.Load(),
		LoadFailures:   s.loadFailures.Load(),
		TotalLoadNanos: s.totalLoadNanos.Load(),
	}
}
