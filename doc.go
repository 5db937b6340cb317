// Package arenago provides region-based memory allocation for Go.
//
// An arena carves many small byte ranges out of a few large blocks, so the
// cost of allocation is a couple of offset updates instead of a heap
// allocation per object. Nothing is freed individually; closing the arena
// releases everything at once. That model fits batch-shaped workloads such
// as memtables, request scratch space, parsers and index builders, where
// thousands of tiny allocations share one lifetime.
//
// # Quick Start
//
// Single-owner arena:
//
//	a := arenago.NewArena(arenago.WithBlockSize(1 << 20))
//	defer a.Close()
//
//	buf := a.Allocate(64)        // exactly 64 bytes, unaligned
//	hdr := a.AllocateAligned(24, 0) // 8-byte aligned
//
// Shared arena:
//
//	ca := arenago.NewConcurrentArena(arenago.WithBlockSize(1 << 20))
//	defer ca.Close()
//	// any goroutine:
//	buf := ca.Allocate(48)
//
// # Choosing an Arena
//
// Arena is the core allocator. It is not synchronized, which keeps the fast
// path at a handful of instructions; use it when one goroutine owns the
// arena or callers already serialize.
//
// ConcurrentArena spreads allocation across per-core shards so goroutines
// allocate in parallel without fighting over one lock. It costs some memory:
// each shard parks a chunk of arena memory that counts as allocated before
// it is used.
//
// # Typed Allocation
//
// New and MakeSlice place Go values in arena memory:
//
//	type sample struct{ ts int64; v float64 }
//
//	s := arenago.New[sample](a)
//	xs := arenago.MakeSlice[float64](a, 0, 1024)
//
// The garbage collector does not see pointers stored in arena memory, so
// both panic if the element type contains pointers.
//
// # Huge Pages
//
// On Linux, arenas built with WithHugePageSize back their blocks with
// hugetlb mappings, cutting TLB pressure for large working sets. Huge page
// allocation fails when the machine has none reserved; the arena logs the
// failure and falls back to ordinary heap blocks, so enabling it is always
// safe.
//
// # Budgets and Observability
//
// An AllocTracker charges every materialized block against an external
// budget; BudgetTracker implements the interface on a weighted semaphore.
// WithLogger and WithMetricsCollector attach structured logging and metrics
// to slow-path events only, so observability never taxes the allocation
// fast path.
//
// # Key Properties
//
//   - Allocate returns exactly the requested size; AllocateAligned returns
//     8-byte aligned ranges
//   - Requests over a quarter of the block size get a dedicated block
//   - Aligned and unaligned requests are carved from opposite block ends,
//     keeping alignment waste near zero
//   - ConcurrentArena keeps the uncontended path lock-free beyond one
//     core-local spinlock
//   - Close is idempotent and invalidates every range the arena returned
package arenago
