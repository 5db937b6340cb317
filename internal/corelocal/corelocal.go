// Package corelocal provides a fixed-size array whose slots are selected by
// the CPU core the caller happens to run on. Spreading hot mutable state
// across core-indexed slots keeps unrelated goroutines off each other's cache
// lines; callers that need exactness must not use this package, since a
// goroutine can migrate between the core query and the slot access.
package corelocal

import (
	"math/rand/v2"
	"runtime"
)

// Array holds one T per slot. The slot count is the smallest power of two
// that is at least 8 and at least the machine's logical CPU count, so the
// low bits of a core id map uniformly onto slots.
//
// For the padding of T against false sharing see the caller; Array itself
// lays the elements out contiguously.
type Array[T any] struct {
	data  []T
	shift uint
}

// New creates an Array sized for the current machine.
func New[T any]() *Array[T] {
	shift := uint(3)
	for 1<<shift < runtime.NumCPU() {
		shift++
	}
	return &Array[T]{
		data:  make([]T, 1<<shift),
		shift: shift,
	}
}

// Size returns the slot count, always a power of two.
func (a *Array[T]) Size() int {
	return len(a.data)
}

// Access returns the element for the core the caller is currently running on.
func (a *Array[T]) Access() *T {
	e, _ := a.AccessElementAndIndex()
	return e
}

// AccessElementAndIndex resolves the caller's core id and returns the matching
// element together with its index. Resolution happens per call; callers may
// memoize the index, tolerating staleness after migration. When the OS query
// is unavailable the index is drawn uniformly at random.
func (a *Array[T]) AccessElementAndIndex() (*T, int) {
	hint := cpuHint()
	var idx int
	if hint < 0 {
		// cpu id unavailable, just pick randomly
		idx = rand.IntN(len(a.data))
	} else {
		idx = hint & (len(a.data) - 1)
	}
	return a.AccessAtCore(idx), idx
}

// AccessAtCore returns the element at the given slot index. It is the entry
// point for explicit re-resolution and for aggregate scans across all slots.
func (a *Array[T]) AccessAtCore(idx int) *T {
	return &a.data[idx]
}

// RandomIndex returns a uniformly distributed in-range slot index, from the
// same source AccessElementAndIndex falls back to.
func (a *Array[T]) RandomIndex() int {
	return rand.IntN(len(a.data))
}
