package arenago

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"

	"github.com/hupe1980/arenago/internal/corelocal"
	"github.com/hupe1980/arenago/internal/spin"
)

// maxShardBlockSize caps the per-shard chunk size. With large shard chunks
// the worst case is every core holding a mostly empty chunk: at 1 MiB chunks
// a 64 core machine would pin 64 MiB before anything is carved from it.
const maxShardBlockSize = 128 * 1024

// shardCacheLineSize comes from the target's cache line geometry.
const shardCacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// shardData is the working state of one shard: a chunk of arena memory it
// hands out without touching the shared arena.
//
// free always has exactly allocatedAndUnused bytes of length; the two are
// updated together under mu. allocatedAndUnused is additionally readable
// without the lock for stats and for the cheap "is this shard empty" probe.
type shardData struct {
	mu                 spin.Mutex
	free               []byte
	allocatedAndUnused atomic.Int64
}

// shard pads shardData to a whole number of cache lines so neighboring
// shards never share one.
type shard struct {
	shardData
	_ [(shardCacheLineSize - unsafe.Sizeof(shardData{})%shardCacheLineSize) % shardCacheLineSize]byte
}

// Both differences must be non-negative, which pins the size exactly.
const (
	_ = shardCacheLineSize - unsafe.Sizeof(shard{})
	_ = unsafe.Sizeof(shard{}) - shardCacheLineSize
)

// ConcurrentArena wraps an Arena so many goroutines can allocate from it at
// once. Each CPU core gets a shard holding a chunk of arena memory; most
// allocations only touch the shard of the core they happen to run on,
// taking a spinlock that is effectively uncontended. The shared arena and
// its lock are only involved when a shard runs dry and refills, when a
// request is too large for shard serving, and for huge page requests.
//
// The shards trade memory for parallelism: chunks parked in shards count as
// allocated by the inner arena but are not used yet. ApproximateMemoryUsage
// corrects for that. Allocations larger than a quarter of the shard chunk
// size skip the shards so the fragmentation stays bounded.
//
// A ConcurrentArena must not be copied after first use.
type ConcurrentArena struct {
	shardBlockSize int
	shards         *corelocal.Array[shard]

	arena   *Arena
	arenaMu spin.Mutex

	// Mirrors of the inner arena's counters, refreshed on every arena
	// touch while arenaMu is held. Kept apart from the colder fields above
	// so stats readers do not bounce the allocation path's cache lines.
	_                       cpu.CacheLinePad
	arenaAllocatedAndUnused atomic.Int64
	memoryAllocatedBytes    atomic.Int64
	irregularBlockNum       atomic.Int64
	_                       cpu.CacheLinePad
}

// NewConcurrentArena creates a ConcurrentArena. It accepts the same options
// as NewArena; the shard chunk size is derived from the block size.
func NewConcurrentArena(optFns ...Option) *ConcurrentArena {
	arena := newArena(applyOptions(optFns))

	ca := &ConcurrentArena{
		shardBlockSize: min(maxShardBlockSize, arena.BlockSize()/8),
		shards:         corelocal.New[shard](),
		arena:          arena,
	}

	ca.fixup()

	return ca
}

// Allocate returns a range of exactly bytes bytes with no alignment
// guarantee. Safe for concurrent use. It panics if bytes is not positive or
// the arena is closed.
func (ca *ConcurrentArena) Allocate(bytes int) []byte {
	if bytes <= 0 {
		panic("arenago: allocation size must be positive")
	}

	return ca.allocate(bytes, false /* forceArena */, func() []byte {
		return ca.arena.Allocate(bytes)
	})
}

// AllocateAligned returns an aligned range of at least bytes bytes, rounded
// up to a multiple of the pointer size so that shard chunks stay aligned
// for the next caller. The returned range carries the rounded length.
//
// A non-zero hugePageSize bypasses the shards and asks the inner arena for
// a dedicated huge page mapping, with the same fallback behavior as
// Arena.AllocateAligned.
//
// It panics if bytes is not positive or the arena is closed.
func (ca *ConcurrentArena) AllocateAligned(bytes, hugePageSize int) []byte {
	if bytes <= 0 {
		panic("arenago: allocation size must be positive")
	}

	rounded := ((bytes-1)|(pointerSize-1)) + 1

	return ca.allocate(rounded, hugePageSize != 0 /* forceArena */, func() []byte {
		return ca.arena.AllocateAligned(rounded, hugePageSize)
	})
}

// allocate serves bytes bytes from a core-local shard, refilling the shard
// from the inner arena when it runs dry. fromArena performs the actual
// arena call for the paths that bypass the shards; it must allocate exactly
// bytes bytes and is invoked with arenaMu held.
//
// Lock order is shard then arena, never the reverse.
func (ca *ConcurrentArena) allocate(bytes int, forceArena bool, fromArena func() []byte) []byte {
	elem, idx := ca.shards.AccessElementAndIndex()

	// Go directly to the arena if the allocation is too large for shard
	// serving, or if we are on core zero with an empty shard and the arena
	// lock is free anyway. The second case keeps cold arenas from blowing a
	// whole shard chunk on their first few small allocations: an arena that
	// only ever serves a handful of bytes should stay inside its inline
	// block instead of materializing chunks per core.
	direct := bytes > ca.shardBlockSize/4 || forceArena

	arenaLocked := false
	if !direct && idx == 0 && elem.allocatedAndUnused.Load() == 0 && ca.arenaMu.TryLock() {
		direct = true
		arenaLocked = true
	}

	if direct {
		if !arenaLocked {
			ca.arenaMu.Lock()
		}

		rv := fromArena()
		ca.fixup()
		ca.arenaMu.Unlock()

		return rv
	}

	// Prefer the shard of the current core, but do not queue on it: under
	// contention any other shard serves just as well.
	s := elem
	if !s.mu.TryLock() {
		s = ca.shards.AccessAtCore(ca.shards.RandomIndex())
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	avail := int(s.allocatedAndUnused.Load())
	if avail < bytes {
		ca.arenaMu.Lock()

		exact := int(ca.arenaAllocatedAndUnused.Load())

		if exact >= bytes && ca.arena.IsInInlineBlock() {
			// The inline block still covers this request. Serving it
			// directly keeps arenas that stay tiny from ever materializing
			// a chunk, let alone a block.
			rv := fromArena()
			ca.fixup()
			ca.arenaMu.Unlock()

			return rv
		}

		// If the arena's active block has within a factor of two of a
		// chunk left, take exactly that and avoid stranding it.
		if exact >= ca.shardBlockSize/2 && exact < ca.shardBlockSize*2 {
			avail = exact
		} else {
			avail = ca.shardBlockSize
		}

		s.free = ca.arena.AllocateAligned(avail, 0)
		ca.fixup()
		ca.arenaMu.Unlock()
	}

	s.allocatedAndUnused.Store(int64(avail - bytes))

	// Pointer-size multiples leave the chunk's low end aligned for the
	// next caller, so they are carved there; everything else comes off the
	// high end.
	var rv []byte
	if bytes%pointerSize == 0 {
		rv = s.free[0:bytes:bytes]
		s.free = s.free[bytes:]
	} else {
		rv = s.free[avail-bytes : avail : avail]
		s.free = s.free[:avail-bytes]
	}

	return rv
}

// fixup refreshes the lock-free counter mirrors from the inner arena.
// Callers must hold arenaMu.
func (ca *ConcurrentArena) fixup() {
	ca.arenaAllocatedAndUnused.Store(int64(ca.arena.AllocatedAndUnused()))
	ca.memoryAllocatedBytes.Store(int64(ca.arena.MemoryAllocatedBytes()))
	ca.irregularBlockNum.Store(int64(ca.arena.IrregularBlockNum()))
}

func (ca *ConcurrentArena) shardAllocatedAndUnused() int {
	total := 0
	for i := 0; i < ca.shards.Size(); i++ {
		total += int(ca.shards.AccessAtCore(i).allocatedAndUnused.Load())
	}

	return total
}

// BlockSize returns the inner arena's effective standard block size.
func (ca *ConcurrentArena) BlockSize() int {
	return ca.arena.BlockSize()
}

// MemoryAllocatedBytes returns the total bytes the inner arena has
// materialized. Lock-free.
func (ca *ConcurrentArena) MemoryAllocatedBytes() int {
	return int(ca.memoryAllocatedBytes.Load())
}

// AllocatedAndUnused returns the bytes available without materializing a
// new block: the inner arena's active block plus all shard chunks.
// Lock-free.
func (ca *ConcurrentArena) AllocatedAndUnused() int {
	return int(ca.arenaAllocatedAndUnused.Load()) + ca.shardAllocatedAndUnused()
}

// IrregularBlockNum returns the inner arena's count of dedicated
// exactly-sized blocks. Lock-free.
func (ca *ConcurrentArena) IrregularBlockNum() int {
	return int(ca.irregularBlockNum.Load())
}

// ApproximateMemoryUsage estimates the bytes handed out or committed to
// bookkeeping. Chunks parked in shards count as unused, so the estimate
// does not jump when a shard refills. Takes the arena lock.
func (ca *ConcurrentArena) ApproximateMemoryUsage() int {
	ca.arenaMu.Lock()
	defer ca.arenaMu.Unlock()

	return ca.arena.ApproximateMemoryUsage() - ca.shardAllocatedAndUnused()
}

// Stats returns a point-in-time snapshot of the arena's counters. Counters
// are read individually, so a snapshot taken during concurrent allocation
// is internally consistent only approximately.
func (ca *ConcurrentArena) Stats() Stats {
	return Stats{
		BlockSize:              ca.BlockSize(),
		MemoryAllocatedBytes:   ca.MemoryAllocatedBytes(),
		AllocatedAndUnused:     ca.AllocatedAndUnused(),
		ApproximateMemoryUsage: ca.ApproximateMemoryUsage(),
		IrregularBlockNum:      ca.IrregularBlockNum(),
	}
}

// Close closes the inner arena. It must not run concurrently with
// allocations; ranges served from shard chunks are invalid afterwards just
// like ranges served directly. Close is idempotent.
func (ca *ConcurrentArena) Close() error {
	ca.arenaMu.Lock()
	defer ca.arenaMu.Unlock()

	return ca.arena.Close()
}
