// Package maintenance implements the spec §4.8 drain-status state machine
// and the single exclusive policy lock serializing the drain path.
//
// The scheduler itself is not generic: it only orchestrates *when* a
// caller-supplied drain closure runs and under what lock, so the same
// state machine serves every Cache[K,V] instantiation. This mirrors the
// teacher's janitor.go, generalized from a fixed-interval ticker to the
// schedule-on-write/read-buffer-full triggers spec §4.8 requires.
package maintenance

import (
	"sync"
	"sync/atomic"

	"github.com/tempuscache/wtlfu/internal/xlog"
)

type drainStatus int32

const (
	idle drainStatus = iota
	required
	processingToIdle
	processingToRequired
)

// Executor submits task for execution and reports whether it was
// accepted. A nil Executor means "run inline": task is invoked by the
// calling goroutine synchronously.
type Executor func(task func()) bool

// Inline is an Executor that always runs the task on the calling
// goroutine; New uses it when given a nil executor. Cache itself defaults
// to Goroutine when no executor option is configured.
func Inline(task func()) bool {
	task()
	return true
}

// Goroutine is a convenience Executor that runs every task on its own
// goroutine.
func Goroutine(task func()) bool {
	go task()
	return true
}

// Scheduler drives the spec §4.8 state machine: a write always requests a
// drain; a read requests one only when the read buffer reports full or a
// drain is already pending. Drain is a single exclusive critical section
// (policyLock) so policy queues, the sketch, and the timer wheel are never
// touched concurrently.
type Scheduler struct {
	status     atomic.Int32
	policyLock sync.Mutex
	executor   Executor
	drain      func()
	log        *xlog.Logger
}

// New builds a scheduler. drain performs one maintenance pass (drain read
// buffer, drain write buffer, reclaim references, expire, evict) and must
// only be called while policyLock is held, which Scheduler itself
// guarantees. executor may be nil, equivalent to maintenance.Inline.
func New(drain func(), executor Executor, log *xlog.Logger) *Scheduler {
	if executor == nil {
		executor = Inline
	}
	return &Scheduler{executor: executor, drain: drain, log: log}
}

// AfterWrite requests a drain; spec §4.8: "after-write always requests a
// schedule."
func (s *Scheduler) AfterWrite() {
	s.requestDrain()
	s.trySchedule()
}

// AfterRead requests a drain only if bufferFull (the read buffer reported
// FULL) or a drain is already pending (spec §4.8).
func (s *Scheduler) AfterRead(bufferFull bool) {
	if bufferFull || drainStatus(s.status.Load()) == required {
		s.requestDrain()
		s.trySchedule()
	}
}

// requestDrain moves IDLE->REQUIRED and PROCESSING_TO_IDLE->
// PROCESSING_TO_REQUIRED; the two PROCESSING states otherwise already
// imply a drain is owed.
func (s *Scheduler) requestDrain() {
	for {
		cur := drainStatus(s.status.Load())
		var next drainStatus
		switch cur {
		case idle:
			next = required
		case processingToIdle:
			next = processingToRequired
		default:
			return
		}
		if s.status.CompareAndSwap(int32(cur), int32(next)) {
			return
		}
	}
}

// trySchedule attempts to become the draining thread: tryLock the policy
// lock, and if that succeeds and a drain is actually owed, dispatch the
// drain loop to the executor (falling back to inline execution on
// rejection, spec §4.10).
func (s *Scheduler) trySchedule() {
	if !s.policyLock.TryLock() {
		return
	}
	if !s.claimProcessing() {
		s.policyLock.Unlock()
		return
	}

	run := func() {
		defer s.policyLock.Unlock()
		s.drainLoop()
	}
	if s.executor(run) {
		return
	}
	xlog.ExecutorRejected(s.log, `maintenance`, `synchronous`)
	run()
}

// claimProcessing moves REQUIRED or PROCESSING_TO_REQUIRED to
// PROCESSING_TO_IDLE, reporting false if the status was already IDLE
// (nothing to do; the caller must release the lock itself).
func (s *Scheduler) claimProcessing() bool {
	for {
		cur := drainStatus(s.status.Load())
		if cur == idle {
			return false
		}
		if s.status.CompareAndSwap(int32(cur), int32(processingToIdle)) {
			return true
		}
	}
}

// drainLoop runs drain, then CASes PROCESSING_TO_IDLE->IDLE; if that CAS
// loses to a concurrent requestDrain (status became
// PROCESSING_TO_REQUIRED), it loops and drains again rather than leaving
// writes unprocessed (spec §4.8). Caller must hold policyLock.
func (s *Scheduler) drainLoop() {
	for {
		s.drain()
		if s.status.CompareAndSwap(int32(processingToIdle), int32(idle)) {
			return
		}
		s.status.Store(int32(processingToIdle))
	}
}

// RunNow forces an immediate synchronous drain pass regardless of the
// current status, used by cleanUp() and clear() (spec §5: "both acquire
// the policy lock"). Idempotent: a second call with nothing pending still
// runs the drain closure once, which itself is a no-op when the buffers
// and expiration/eviction checks find nothing to do.
func (s *Scheduler) RunNow() {
	s.policyLock.Lock()
	defer s.policyLock.Unlock()
	s.status.Store(int32(processingToIdle))
	s.drainLoop()
}

// RunLocked runs fn while holding the policy lock, without going through
// the drain-status state machine. Used for one-off synchronous policy
// mutations (write-buffer overload fallback, Cache.SetMaximum, Cache.Clear)
// that need exclusivity with the drain path but aren't a drain pass
// themselves.
func (s *Scheduler) RunLocked(fn func()) {
	s.policyLock.Lock()
	defer s.policyLock.Unlock()
	fn()
}
