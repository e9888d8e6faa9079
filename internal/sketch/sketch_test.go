package sketch

import "testing"

func TestUninitializedIsNoop(t *testing.T) {
	f := New(0)
	if f.Initialized() {
		t.Fatalf("New(0) must leave the sketch uninitialized")
	}
	f.Increment(123)
	if got := f.Estimate(123); got != 0 {
		t.Fatalf("Estimate on an uninitialized sketch = %d, want 0", got)
	}
}

func TestIncrementEstimate(t *testing.T) {
	f := New(1024)
	if !f.Initialized() {
		t.Fatalf("New(1024) should initialize the sketch")
	}
	for i := 0; i < 5; i++ {
		f.Increment(42)
	}
	if got := f.Estimate(42); got != 5 {
		t.Fatalf("Estimate(42) = %d, want 5", got)
	}
	if got := f.Estimate(7); got != 0 {
		t.Fatalf("Estimate of an unobserved key = %d, want 0", got)
	}
}

func TestCounterSaturates(t *testing.T) {
	f := New(256)
	for i := 0; i < 100; i++ {
		f.Increment(99)
	}
	if got := f.Estimate(99); got != counterMax {
		t.Fatalf("Estimate after many increments = %d, want saturated %d", got, counterMax)
	}
}

func TestAgingHalvesCounters(t *testing.T) {
	f := New(16)
	// sampleMax is capacity*10; capacity is nextPow2(16) = 16, so 160
	// increments trigger exactly one reset at the boundary.
	for i := 0; i < 160; i++ {
		f.Increment(uint64(1))
	}
	got := f.Estimate(1)
	if got == 0 || got >= counterMax {
		t.Fatalf("Estimate after aging = %d, want a partial, non-zero, non-saturated count", got)
	}
}

func TestEnsureCapacityGrowsNotShrinks(t *testing.T) {
	f := New(16)
	f.Increment(5)
	before := f.rowLen

	f.EnsureCapacity(8) // smaller than current, must be a no-op
	if f.rowLen != before {
		t.Fatalf("EnsureCapacity with a smaller maximum must not shrink the table")
	}

	f.EnsureCapacity(1024)
	if f.rowLen <= before {
		t.Fatalf("EnsureCapacity with a larger maximum must grow the table")
	}
}

func TestEstimateIsMinAcrossRows(t *testing.T) {
	f := New(64)
	// Distinct keys may collide in every one of the 4 rows, so an estimate
	// can exceed a key's single increment; it must still stay far below
	// the total number of increments.
	for h := uint64(0); h < 50; h++ {
		f.Increment(h)
	}
	for h := uint64(0); h < 50; h++ {
		if got := f.Estimate(h); got > 50 {
			t.Fatalf("Estimate(%d) = %d, implausibly large", h, got)
		}
	}
}
