package arenago

// Allocator hands out raw byte ranges carved from large blocks. Memory is
// reclaimed only when the whole allocator is closed; there is no per-object
// free and returned ranges are never moved or compacted.
//
// The two implementations are Arena (externally synchronized) and
// ConcurrentArena (safe for concurrent callers).
type Allocator interface {
	// Allocate returns a range of exactly bytes bytes with no particular
	// alignment. It panics if bytes is not positive.
	Allocate(bytes int) []byte

	// AllocateAligned returns a range whose first byte is aligned to the
	// allocator's align unit. A non-zero hugePageSize asks for a dedicated
	// huge-page-backed range of that granularity, falling back to a normal
	// range when the platform or machine cannot serve it. It panics if bytes
	// is not positive.
	AllocateAligned(bytes, hugePageSize int) []byte

	// BlockSize returns the normalized size of the standard blocks the
	// allocator carves from.
	BlockSize() int
}

// AllocTracker accounts the bytes an allocator materializes against some
// external budget. The allocator reports sizes; the tracker owns all
// bookkeeping policy.
//
// Allocate is called once per materialized block with the block's full size,
// not per caller request. DoneAllocating marks the allocator's growth as
// finished; FreeMem returns the accounted bytes to the budget and must be
// idempotent, since the owning arena calls it again on Close. IsFreed
// reports whether FreeMem has run.
type AllocTracker interface {
	Allocate(bytes int)
	DoneAllocating()
	FreeMem()
	IsFreed() bool
}

var (
	_ Allocator = (*Arena)(nil)
	_ Allocator = (*ConcurrentArena)(nil)
)
