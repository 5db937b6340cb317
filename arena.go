package arenago

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/time/rate"

	"github.com/hupe1980/arenago/internal/mmap"
)

const (
	// MinBlockSize is the smallest standard block size an Arena will use.
	// OptimizeBlockSize clamps smaller requests up to this value.
	MinBlockSize = 4096

	// MaxBlockSize caps the standard block size.
	MaxBlockSize = 2 << 30

	// inlineSize is the capacity of the block embedded in the Arena struct
	// itself. Arenas that stay small never allocate beyond their own struct.
	inlineSize = 2048

	// alignUnit is the guarantee AllocateAligned makes about the first byte
	// of every returned range. 8 covers the strictest alignment of any Go
	// type on the supported platforms.
	alignUnit = 8

	pointerSize = int(unsafe.Sizeof(uintptr(0)))
)

// OptimizeBlockSize clamps blockSize into [MinBlockSize, MaxBlockSize] and
// rounds it up to a multiple of the align unit. NewArena applies it to the
// configured block size, so two arenas built with nearby sizes may end up
// with the same effective BlockSize.
func OptimizeBlockSize(blockSize int) int {
	optimized := min(max(blockSize, MinBlockSize), MaxBlockSize)

	if optimized%alignUnit != 0 {
		optimized = (1 + optimized/alignUnit) * alignUnit
	}

	return optimized
}

// Arena allocates byte ranges by carving them out of large blocks, so that
// many small allocations share one block instead of hitting the heap one by
// one. Nothing is freed individually; Close releases everything at once.
//
// Each active block is consumed from both ends: AllocateAligned takes from
// the low end, where alignment padding is predictable, and Allocate takes
// from the high end. Splitting the directions keeps alignment slop from
// fragmenting the block. Requests larger than a quarter of the block size
// bypass the active block entirely and get a block of their own.
//
// An Arena is not safe for concurrent use. Wrap it in a ConcurrentArena or
// synchronize externally. It must not be copied after first use.
type Arena struct {
	blockSize int

	inline     [inlineSize]byte
	blocks     [][]byte
	hugeBlocks []*mmap.Mapping

	irregularBlockNum int

	// Active block state. cur aliases inline, the newest entry of blocks,
	// or the newest huge mapping. Aligned carving advances alignedOff
	// upward, unaligned carving moves unalignedOff downward, and the bytes
	// between the two offsets are what is still available.
	cur          []byte
	alignedOff   int
	unalignedOff int

	// Huge page granularity in bytes, normalized to cover blockSize.
	// Zero disables huge-page-backed blocks.
	hugePageSize int

	// Total bytes materialized across inline, blocks and hugeBlocks.
	blocksMemory int

	tracker AllocTracker
	logger  *Logger
	metrics MetricsCollector

	hugeWarn *rate.Limiter

	closed bool
}

// NewArena creates an Arena. With no options it uses MinBlockSize blocks,
// no tracker and no huge pages.
func NewArena(optFns ...Option) *Arena {
	return newArena(applyOptions(optFns))
}

func newArena(o options) *Arena {
	a := &Arena{
		blockSize:    OptimizeBlockSize(o.blockSize),
		hugePageSize: o.hugePageSize,
		tracker:      o.tracker,
		logger:       o.logger,
		metrics:      o.metricsCollector,
		hugeWarn:     rate.NewLimiter(rate.Every(10*time.Second), 1),
	}

	a.logger = a.logger.WithBlockSize(a.blockSize)

	a.cur = a.inline[:]
	a.alignedOff = 0
	a.unalignedOff = inlineSize
	a.blocksMemory = inlineSize

	if !mmap.HugePagesSupported {
		a.hugePageSize = 0
	} else if a.hugePageSize > 0 && a.blockSize > a.hugePageSize {
		// Huge mappings must be a multiple of the page granularity, and a
		// block must still fit in one mapping.
		a.hugePageSize = ((a.blockSize-1)/a.hugePageSize + 1) * a.hugePageSize
	}

	if a.tracker != nil {
		a.tracker.Allocate(inlineSize)
	}

	return a
}

// Allocate returns a range of exactly bytes bytes with no alignment
// guarantee, carved from the high end of the active block. It panics if
// bytes is not positive or the arena is closed.
func (a *Arena) Allocate(bytes int) []byte {
	a.checkUsable(bytes)

	if bytes < a.remaining() {
		a.unalignedOff -= bytes

		return a.cur[a.unalignedOff : a.unalignedOff+bytes : a.unalignedOff+bytes]
	}

	return a.allocateFallback(bytes, false /* aligned */)
}

// AllocateAligned returns a range of exactly bytes bytes whose first byte
// is aligned to the align unit, carved from the low end of the active block.
//
// A non-zero hugePageSize asks for a dedicated huge-page mapping instead,
// with bytes rounded up to a multiple of hugePageSize; the rounded-up
// remainder is wasted. The arena must also have been built with
// WithHugePageSize for the request to be attempted. When the mapping cannot
// be served the failure is logged and the allocation quietly comes from a
// normal block instead.
//
// It panics if bytes is not positive or the arena is closed.
func (a *Arena) AllocateAligned(bytes, hugePageSize int) []byte {
	a.checkUsable(bytes)

	if mmap.HugePagesSupported && a.hugePageSize > 0 && hugePageSize > 0 {
		reserved := ((bytes-1)/hugePageSize + 1) * hugePageSize

		if block := a.allocateFromHugePage(reserved); block != nil {
			return block[0:bytes:bytes]
		}
	}

	slop := a.alignSlop()
	needed := bytes + slop

	if needed <= a.remaining() {
		off := a.alignedOff + slop
		a.alignedOff += needed

		return a.cur[off : off+bytes : off+bytes]
	}

	// The fallback block starts aligned, no slop needed there.
	return a.allocateFallback(bytes, true /* aligned */)
}

// alignSlop is the padding needed to bring the aligned cursor to the next
// align-unit boundary, computed from the block's real address.
func (a *Arena) alignSlop() int {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.cur)))

	mod := int((base + uintptr(a.alignedOff)) & (alignUnit - 1))
	if mod == 0 {
		return 0
	}

	return alignUnit - mod
}

func (a *Arena) allocateFallback(bytes int, aligned bool) []byte {
	if bytes > a.blockSize/4 {
		// More than a quarter of a standard block. Carving it from a shared
		// block would strand too much of the remainder, so it gets a block
		// of exactly its own size and the active block stays as it is.
		a.irregularBlockNum++
		block := a.allocateNewBlock(bytes)
		a.metrics.RecordIrregularBlock(bytes)

		return block
	}

	// Whatever is left in the active block is abandoned.
	size := 0
	var block []byte

	if mmap.HugePagesSupported && a.hugePageSize > 0 {
		size = a.hugePageSize
		block = a.allocateFromHugePage(size)
	}

	if block == nil {
		size = a.blockSize
		block = a.allocateNewBlock(size)
	}

	a.cur = block

	if aligned {
		// New blocks come at least align-unit aligned from the runtime and
		// page aligned from the kernel, so the low end needs no slop.
		a.alignedOff = bytes
		a.unalignedOff = size

		return block[0:bytes:bytes]
	}

	a.alignedOff = 0
	a.unalignedOff = size - bytes

	return block[size-bytes : size : size]
}

func (a *Arena) allocateNewBlock(blockBytes int) []byte {
	block := make([]byte, blockBytes)
	a.blocks = append(a.blocks, block)
	a.blocksMemory += blockBytes

	if a.tracker != nil {
		a.tracker.Allocate(blockBytes)
	}

	a.metrics.RecordBlockAllocated(blockBytes)

	return block
}

// allocateFromHugePage maps bytes bytes of huge-page-backed memory and
// registers the mapping with the arena. It returns nil when the mapping
// cannot be served, leaving the caller to fall back to standard blocks.
func (a *Arena) allocateFromHugePage(bytes int) []byte {
	m, err := mmap.MapHuge(bytes)
	if err != nil {
		a.metrics.RecordHugePageFallback()

		if a.hugeWarn.Allow() {
			a.logger.Warn("huge page allocation failed, falling back to standard blocks",
				"bytes", bytes,
				"error", err,
			)
		}

		return nil
	}

	a.hugeBlocks = append(a.hugeBlocks, m)
	a.blocksMemory += bytes

	if a.tracker != nil {
		a.tracker.Allocate(bytes)
	}

	a.metrics.RecordHugeBlockAllocated(bytes)

	return m.Bytes()
}

// remaining is the unused span of the active block.
func (a *Arena) remaining() int {
	return a.unalignedOff - a.alignedOff
}

func (a *Arena) checkUsable(bytes int) {
	if bytes <= 0 {
		panic("arenago: allocation size must be positive")
	}

	if a.closed {
		panic("arenago: allocate on closed arena")
	}
}

// BlockSize returns the effective standard block size after
// OptimizeBlockSize normalization.
func (a *Arena) BlockSize() int {
	return a.blockSize
}

// MemoryAllocatedBytes returns the total bytes materialized in blocks,
// including the parts nothing has been carved from yet.
func (a *Arena) MemoryAllocatedBytes() int {
	return a.blocksMemory
}

// AllocatedAndUnused returns the bytes still carvable from the active block.
func (a *Arena) AllocatedAndUnused() int {
	return a.remaining()
}

// IrregularBlockNum returns how many oversized requests received a dedicated
// exactly-sized block.
func (a *Arena) IrregularBlockNum() int {
	return a.irregularBlockNum
}

// IsInInlineBlock reports whether the arena has materialized no blocks
// beyond the one embedded in the struct.
func (a *Arena) IsInInlineBlock() bool {
	return len(a.blocks) == 0 && len(a.hugeBlocks) == 0
}

// ApproximateMemoryUsage estimates the bytes the arena has handed out or
// committed to bookkeeping: everything materialized, plus the block index,
// minus what the active block still has available.
func (a *Arena) ApproximateMemoryUsage() int {
	return a.blocksMemory + len(a.blocks)*pointerSize - a.remaining()
}

// Stats returns a point-in-time snapshot of the arena's counters.
func (a *Arena) Stats() Stats {
	return Stats{
		BlockSize:              a.blockSize,
		MemoryAllocatedBytes:   a.blocksMemory,
		AllocatedAndUnused:     a.remaining(),
		ApproximateMemoryUsage: a.ApproximateMemoryUsage(),
		IrregularBlockNum:      a.irregularBlockNum,
	}
}

// Close unmaps the huge-page mappings and settles the tracker. Standard
// blocks are left to the garbage collector once the arena itself becomes
// unreachable. Close is idempotent; allocating after Close panics.
//
// Every range the arena ever returned is invalid after Close.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}

	a.closed = true

	var errs []error

	for _, m := range a.hugeBlocks {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	a.hugeBlocks = nil

	if a.tracker != nil {
		a.tracker.FreeMem()
	}

	return errors.Join(errs...)
}
