package arenago

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a point-in-time snapshot of an arena's sizing counters, as
// returned by Arena.Stats and ConcurrentArena.Stats.
type Stats struct {
	// BlockSize is the effective standard block size.
	BlockSize int

	// MemoryAllocatedBytes is the total bytes materialized in blocks.
	MemoryAllocatedBytes int

	// AllocatedAndUnused is the materialized bytes not yet handed out.
	AllocatedAndUnused int

	// ApproximateMemoryUsage estimates the bytes handed out or committed
	// to bookkeeping.
	ApproximateMemoryUsage int

	// IrregularBlockNum counts oversized requests that received a
	// dedicated exactly-sized block.
	IrregularBlockNum int
}

// String renders the snapshot with human-readable sizes, suitable for
// logging.
func (s Stats) String() string {
	return fmt.Sprintf("block_size=%s allocated=%s unused=%s usage=%s irregular_blocks=%d",
		humanize.IBytes(uint64(s.BlockSize)),
		humanize.IBytes(uint64(s.MemoryAllocatedBytes)),
		humanize.IBytes(uint64(s.AllocatedAndUnused)),
		humanize.IBytes(uint64(s.ApproximateMemoryUsage)),
		s.IrregularBlockNum,
	)
}
