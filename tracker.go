package arenago

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// BudgetTracker is an AllocTracker that charges materialized blocks against
// a fixed byte budget. It never blocks and never fails an allocation: when
// the budget is exhausted it keeps counting and flips OverBudget, leaving
// the reaction (flushing, shedding load, refusing new arenas) to the owner.
//
// A single tracker may be shared by several arenas drawing on one budget.
// All methods are safe for concurrent use.
type BudgetTracker struct {
	budget int64

	sem      *semaphore.Weighted // nil if unlimited
	reserved atomic.Int64

	allocated  atomic.Int64
	overBudget atomic.Bool

	done atomic.Bool

	mu    sync.Mutex
	freed atomic.Bool
}

// NewBudgetTracker creates a tracker with the given budget in bytes.
// A budget of 0 or less disables enforcement; the tracker then only counts.
func NewBudgetTracker(budget int64) *BudgetTracker {
	t := &BudgetTracker{
		budget: budget,
	}

	if budget > 0 {
		t.sem = semaphore.NewWeighted(budget)
	}

	return t
}

// Allocate implements AllocTracker. Calls after FreeMem are ignored.
func (t *BudgetTracker) Allocate(bytes int) {
	if bytes <= 0 || t.freed.Load() {
		return
	}

	t.allocated.Add(int64(bytes))

	if t.sem == nil {
		return
	}

	if t.sem.TryAcquire(int64(bytes)) {
		t.reserved.Add(int64(bytes))
	} else {
		t.overBudget.Store(true)
	}
}

// DoneAllocating implements AllocTracker. The counters stay readable; only
// the growth phase is declared over.
func (t *BudgetTracker) DoneAllocating() {
	t.done.Store(true)
}

// FreeMem implements AllocTracker. It returns the reserved bytes to the
// budget and implies DoneAllocating. Safe to call more than once.
func (t *BudgetTracker) FreeMem() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.freed.Load() {
		return
	}

	t.done.Store(true)

	if t.sem != nil {
		if r := t.reserved.Swap(0); r > 0 {
			t.sem.Release(r)
		}
	}

	t.freed.Store(true)
}

// IsFreed implements AllocTracker.
func (t *BudgetTracker) IsFreed() bool {
	return t.freed.Load()
}

// Allocated returns the total bytes ever charged to the tracker. It is not
// reduced by FreeMem, so it reads as a historical high-water mark.
func (t *BudgetTracker) Allocated() int64 {
	return t.allocated.Load()
}

// Budget returns the configured budget in bytes (0 if unlimited).
func (t *BudgetTracker) Budget() int64 {
	return t.budget
}

// OverBudget reports whether any allocation did not fit the budget. It
// latches: once over, it stays over until the tracker is freed and reused,
// which it never is in normal arena use.
func (t *BudgetTracker) OverBudget() bool {
	return t.overBudget.Load()
}

var _ AllocTracker = (*BudgetTracker)(nil)
