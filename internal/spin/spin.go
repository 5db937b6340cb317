// Package spin provides a small test-and-test-and-set spinlock for critical
// sections in the tens-of-nanoseconds range, where parking on a sync.Mutex
// would cost more than the work it guards.
package spin

import (
	"runtime"
	"sync/atomic"
)

// DefaultYieldAfter is the number of failed acquisition attempts after which
// Lock starts yielding the processor between retries.
const DefaultYieldAfter = 100

// Mutex is a two-state spinlock. The zero value is an unlocked mutex.
//
// Lock busy-waits: it is only appropriate when the critical section is very
// short and never blocks. There is no ownership tracking, no recursion and no
// fairness. A Mutex must not be copied after first use.
type Mutex struct {
	locked atomic.Bool

	// YieldAfter is the number of consecutive failed attempts Lock tolerates
	// before yielding to the scheduler on every further retry. Zero means
	// DefaultYieldAfter. Set it before the mutex is shared.
	YieldAfter int
}

// TryLock attempts to acquire the mutex without spinning. The leading load
// keeps contended retries on a locally cached line instead of hammering the
// CAS.
func (m *Mutex) TryLock() bool {
	return !m.locked.Load() && m.locked.CompareAndSwap(false, true)
}

// Lock spins until the mutex is acquired. Once the attempt count exceeds the
// yield threshold, every further failed attempt gives up the processor so a
// descheduled holder can run.
func (m *Mutex) Lock() {
	yieldAfter := m.YieldAfter
	if yieldAfter == 0 {
		yieldAfter = DefaultYieldAfter
	}
	for tries := 0; ; tries++ {
		if m.TryLock() {
			return
		}
		if tries > yieldAfter {
			runtime.Gosched()
		}
	}
}

// Unlock releases the mutex. The atomic store pairs with the acquire in the
// next successful TryLock.
func (m *Mutex) Unlock() {
	m.locked.Store(false)
}
