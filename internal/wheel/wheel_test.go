package wheel

import (
	"testing"

	"github.com/tempuscache/wtlfu/internal/node"
)

const tick = int64(1) << tickShift // ~1.07s, the finest bucket span

func TestScheduleLen(t *testing.T) {
	w := New[string, int](0)
	e := node.New("a", 1, 1, 0)
	e.VarExpireNanos = 10 * tick
	w.Schedule(e)
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after scheduling one entry", w.Len())
	}
	if !e.InWheel() {
		t.Fatalf("entry should report InWheel() = true once scheduled")
	}
}

func TestDeschedule(t *testing.T) {
	w := New[string, int](0)
	e := node.New("a", 1, 1, 0)
	e.VarExpireNanos = 10 * tick
	w.Schedule(e)
	w.Deschedule(e)
	if w.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after descheduling the only entry", w.Len())
	}
	if e.InWheel() {
		t.Fatalf("entry should report InWheel() = false after Deschedule")
	}
}

func TestDescheduleUnscheduledIsNoop(t *testing.T) {
	w := New[string, int](0)
	e := node.New("a", 1, 1, 0)
	w.Deschedule(e) // must not panic
	if w.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", w.Len())
	}
}

func TestAdvanceExpiresDueEntries(t *testing.T) {
	w := New[string, int](0)
	e := node.New("a", 1, 1, 0)
	e.VarExpireNanos = 5 * tick
	w.Schedule(e)

	var expired []*node.Entry[string, int]
	w.Advance(100*tick, func(ent *node.Entry[string, int]) { expired = append(expired, ent) })

	if len(expired) != 1 || expired[0] != e {
		t.Fatalf("Advance past the deadline should expire the entry, got %v", expired)
	}
	if w.Len() != 0 {
		t.Fatalf("expired entry must be removed from the wheel, Len() = %d", w.Len())
	}
}

func TestAdvanceLeavesFutureEntriesScheduled(t *testing.T) {
	w := New[string, int](0)
	e := node.New("a", 1, 1, 0)
	e.VarExpireNanos = 1000 * tick
	w.Schedule(e)

	var expired []*node.Entry[string, int]
	w.Advance(1*tick, func(ent *node.Entry[string, int]) { expired = append(expired, ent) })

	if len(expired) != 0 {
		t.Fatalf("Advance before the deadline must not expire the entry, got %v", expired)
	}
	if w.Len() != 1 {
		t.Fatalf("entry scheduled far in the future should remain scheduled, Len() = %d", w.Len())
	}
}

func TestAdvanceCascadesCoarseToFine(t *testing.T) {
	w := New[string, int](0)
	e := node.New("a", 1, 1, 0)
	// Far enough out to land in a coarser level, but due well before the
	// final Advance call so the cascade must eventually fire it.
	e.VarExpireNanos = (1 << bucketBits) * tick
	w.Schedule(e)
	if e.WheelLevel == 0 {
		t.Fatalf("an entry this far out should not land in the finest level")
	}

	var expired []*node.Entry[string, int]
	w.Advance(e.VarExpireNanos+10*tick, func(ent *node.Entry[string, int]) { expired = append(expired, ent) })

	if len(expired) != 1 || expired[0] != e {
		t.Fatalf("cascading advance should eventually expire the entry, got %v", expired)
	}
}

func TestRescheduleMovesDeadline(t *testing.T) {
	w := New[string, int](0)
	e := node.New("a", 1, 1, 0)
	e.VarExpireNanos = 5 * tick
	w.Schedule(e)

	e.VarExpireNanos = 500 * tick
	w.Reschedule(e)

	var expired []*node.Entry[string, int]
	w.Advance(10*tick, func(ent *node.Entry[string, int]) { expired = append(expired, ent) })
	if len(expired) != 0 {
		t.Fatalf("after Reschedule to a later deadline, the entry must not fire at the old deadline")
	}
	if w.Len() != 1 {
		t.Fatalf("rescheduled entry should still be scheduled, Len() = %d", w.Len())
	}
}

func TestAdvanceIgnoresPastClock(t *testing.T) {
	w := New[string, int](1000 * tick)
	e := node.New("a", 1, 1, 0)
	e.VarExpireNanos = 5 * tick
	w.Schedule(e)

	var expired []*node.Entry[string, int]
	w.Advance(10*tick, func(ent *node.Entry[string, int]) { expired = append(expired, ent) })
	if len(expired) != 0 {
		t.Fatalf("Advance to a time at or before the wheel's current clock must be a no-op")
	}
}
