package arenago

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/arenago/internal/mmap"
)

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func TestOptimizeBlockSize(t *testing.T) {
	t.Run("ClampsLow", func(t *testing.T) {
		assert.Equal(t, MinBlockSize, OptimizeBlockSize(0))
		assert.Equal(t, MinBlockSize, OptimizeBlockSize(-1))
		assert.Equal(t, MinBlockSize, OptimizeBlockSize(100))
	})

	t.Run("ClampsHigh", func(t *testing.T) {
		assert.Equal(t, MaxBlockSize, OptimizeBlockSize(MaxBlockSize+1))
	})

	t.Run("RoundsToAlignUnit", func(t *testing.T) {
		assert.Equal(t, 4096, OptimizeBlockSize(4096))
		assert.Equal(t, 4104, OptimizeBlockSize(4097))
		assert.Equal(t, 4104, OptimizeBlockSize(4104))
		assert.Equal(t, 5000, OptimizeBlockSize(5000))
	})

	t.Run("Properties", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			blockSize := rapid.IntRange(-1<<20, MaxBlockSize+1<<20).Draw(t, "blockSize").(int)

			optimized := OptimizeBlockSize(blockSize)

			if optimized < MinBlockSize || optimized > MaxBlockSize {
				t.Fatalf("OptimizeBlockSize(%d) = %d, out of range", blockSize, optimized)
			}

			if optimized%alignUnit != 0 {
				t.Fatalf("OptimizeBlockSize(%d) = %d, not a multiple of %d", blockSize, optimized, alignUnit)
			}

			if blockSize >= MinBlockSize && blockSize <= MaxBlockSize {
				if optimized < blockSize || optimized-blockSize >= alignUnit {
					t.Fatalf("OptimizeBlockSize(%d) = %d, not the next multiple", blockSize, optimized)
				}
			}
		})
	})
}

func TestArena_New(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		assert.Equal(t, MinBlockSize, a.BlockSize())
		assert.Equal(t, inlineSize, a.AllocatedAndUnused())
		assert.Equal(t, inlineSize, a.MemoryAllocatedBytes())
		assert.Equal(t, 0, a.ApproximateMemoryUsage())
		assert.Equal(t, 0, a.IrregularBlockNum())
		assert.True(t, a.IsInInlineBlock())
	})

	t.Run("BlockSizeNormalized", func(t *testing.T) {
		a := NewArena(WithBlockSize(4097))
		defer a.Close()

		assert.Equal(t, 4104, a.BlockSize())
	})
}

func TestArena_Allocate(t *testing.T) {
	t.Run("ExactLength", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		for _, bytes := range []int{1, 7, 8, 100, 1000} {
			buf := a.Allocate(bytes)
			require.Len(t, buf, bytes)
			require.Equal(t, bytes, cap(buf))
		}
	})

	t.Run("CarvesHighEndDownward", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		p1 := a.Allocate(100)
		p2 := a.Allocate(200)

		// p2 sits immediately below p1 in the inline block.
		assert.Equal(t, uintptr(200), addrOf(p1)-addrOf(p2))
		assert.Equal(t, inlineSize-300, a.AllocatedAndUnused())
		assert.True(t, a.IsInInlineBlock())
	})

	t.Run("ExactFitStillRefills", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		a.Allocate(1048) // leaves exactly 1000
		require.Equal(t, 1000, a.AllocatedAndUnused())

		buf := a.Allocate(1000)
		require.Len(t, buf, 1000)

		// An exact fit does not reuse the active block.
		assert.False(t, a.IsInInlineBlock())
		assert.Equal(t, a.BlockSize()-1000, a.AllocatedAndUnused())
		assert.Equal(t, inlineSize+a.BlockSize(), a.MemoryAllocatedBytes())
	})

	t.Run("RefillAbandonsRemainder", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		p1 := a.Allocate(1200)
		p2 := a.Allocate(200)
		p3 := a.Allocate(700) // 648 left, forces a standard block

		require.Len(t, p1, 1200)
		require.Len(t, p2, 200)
		require.Len(t, p3, 700)

		assert.Equal(t, 0, a.IrregularBlockNum())
		assert.False(t, a.IsInInlineBlock())
		assert.Equal(t, inlineSize+a.BlockSize(), a.MemoryAllocatedBytes())
		assert.Equal(t, a.BlockSize()-700, a.AllocatedAndUnused())
		assert.Equal(t,
			a.MemoryAllocatedBytes()+pointerSize-a.AllocatedAndUnused(),
			a.ApproximateMemoryUsage())
	})

	t.Run("InvalidSizePanics", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		require.Panics(t, func() { a.Allocate(0) })
		require.Panics(t, func() { a.Allocate(-1) })
	})
}

func TestArena_IrregularBlock(t *testing.T) {
	t.Run("OversizedGetsOwnBlock", func(t *testing.T) {
		a := NewArena() // block size 4096
		defer a.Close()

		buf := a.Allocate(5000)
		require.Len(t, buf, 5000)

		assert.Equal(t, 1, a.IrregularBlockNum())
		assert.False(t, a.IsInInlineBlock())
		assert.Equal(t, inlineSize+5000, a.MemoryAllocatedBytes())

		// The active block is untouched, the next small request still
		// comes from the inline block.
		assert.Equal(t, inlineSize, a.AllocatedAndUnused())
		small := a.Allocate(16)
		require.Len(t, small, 16)
		assert.Equal(t, inlineSize-16, a.AllocatedAndUnused())
	})

	t.Run("QuarterBoundary", func(t *testing.T) {
		a := NewArena() // block size 4096, quarter is 1024
		defer a.Close()

		a.Allocate(2000) // leave 48 so the next request misses the fast path

		a.Allocate(1024)
		assert.Equal(t, 0, a.IrregularBlockNum(), "exactly a quarter refills instead")

		a.Allocate(3060) // drain the fresh block down to 12
		require.Equal(t, 12, a.AllocatedAndUnused())

		a.Allocate(1025)
		assert.Equal(t, 1, a.IrregularBlockNum(), "one past a quarter is irregular")
	})
}

func TestArena_AllocateAligned(t *testing.T) {
	t.Run("Aligned", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		p1 := a.AllocateAligned(64, 0)
		p2 := a.AllocateAligned(64, 0)

		require.Len(t, p1, 64)
		require.Len(t, p2, 64)
		assert.Zero(t, addrOf(p1)%alignUnit)
		assert.Zero(t, addrOf(p2)%alignUnit)

		// Aligned requests advance the low end upward.
		assert.Equal(t, uintptr(64), addrOf(p2)-addrOf(p1))
	})

	t.Run("SlopRealigns", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		a.AllocateAligned(3, 0)
		p := a.AllocateAligned(8, 0)

		assert.Zero(t, addrOf(p)%alignUnit)
		// 3 carved, 5 slop, 8 carved.
		assert.Equal(t, inlineSize-16, a.AllocatedAndUnused())
	})

	t.Run("FallbackStartsBlockAligned", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		a.Allocate(2000) // leave 48
		p := a.AllocateAligned(100, 0)

		require.Len(t, p, 100)
		assert.Zero(t, addrOf(p)%alignUnit)

		// The request opens the new block at its very start.
		assert.Equal(t, addrOf(a.cur), addrOf(p))
		assert.Equal(t, 100, a.alignedOff)
		assert.Equal(t, a.BlockSize(), a.unalignedOff)
	})

	t.Run("OppositeEndsShareBlock", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		lo := a.AllocateAligned(32, 0)
		hi := a.Allocate(32)

		for i := range lo {
			lo[i] = 0xAA
		}
		for i := range hi {
			hi[i] = 0x55
		}

		for _, b := range lo {
			require.EqualValues(t, 0xAA, b)
		}
		for _, b := range hi {
			require.EqualValues(t, 0x55, b)
		}

		assert.True(t, addrOf(hi) > addrOf(lo))
		assert.Equal(t, inlineSize-64, a.AllocatedAndUnused())
	})

	t.Run("InvalidSizePanics", func(t *testing.T) {
		a := NewArena()
		defer a.Close()

		require.Panics(t, func() { a.AllocateAligned(0, 0) })
		require.Panics(t, func() { a.AllocateAligned(-8, 0) })
	})
}

func TestArena_HugePage(t *testing.T) {
	const hugePageSize = 2 << 20

	metrics := &BasicMetricsCollector{}
	a := NewArena(
		WithHugePageSize(hugePageSize),
		WithMetricsCollector(metrics),
	)
	defer a.Close()

	// Works whether or not the machine has huge pages reserved; without
	// them the allocation falls back to a standard block.
	buf := a.AllocateAligned(100, hugePageSize)
	require.Len(t, buf, 100)
	assert.Zero(t, addrOf(buf)%alignUnit)

	for i := range buf {
		buf[i] = 0x5A
	}

	if mmap.HugePagesSupported {
		stats := metrics.GetStats()
		assert.Positive(t, stats.HugeBlockCount+stats.HugePageFallbacks)

		if stats.HugeBlockCount > 0 {
			// Mapped size is rounded up to the page granularity.
			assert.EqualValues(t, hugePageSize, stats.HugeBlockBytes)
			assert.False(t, a.IsInInlineBlock())
		}
	}
}

func TestArena_Tracker(t *testing.T) {
	t.Run("ChargesBlocks", func(t *testing.T) {
		tracker := NewBudgetTracker(1 << 20)
		a := NewArena(WithTracker(tracker))

		assert.EqualValues(t, inlineSize, tracker.Allocated())

		a.Allocate(5000) // irregular block
		assert.EqualValues(t, inlineSize+5000, tracker.Allocated())
		assert.False(t, tracker.OverBudget())

		require.NoError(t, a.Close())
		assert.True(t, tracker.IsFreed())
	})

	t.Run("OverBudgetLatches", func(t *testing.T) {
		tracker := NewBudgetTracker(1000)
		a := NewArena(WithTracker(tracker))
		defer a.Close()

		// The inline block alone exceeds the budget.
		assert.True(t, tracker.OverBudget())
	})
}

func TestArena_Metrics(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	a := NewArena(WithMetricsCollector(metrics))
	defer a.Close()

	a.Allocate(100) // inline, no block events
	assert.EqualValues(t, 0, metrics.BlockCount.Load())

	a.Allocate(3000) // over a quarter of the block size, irregular
	stats := metrics.GetStats()
	assert.EqualValues(t, 1, stats.BlockCount)
	assert.EqualValues(t, 3000, stats.BlockBytes)
	assert.EqualValues(t, 1, stats.IrregularCount)

	a.Allocate(1900) // fits the inline remainder, still no refill
	a.Allocate(900)  // refill with a standard block
	stats = metrics.GetStats()
	assert.EqualValues(t, 2, stats.BlockCount)
	assert.EqualValues(t, 3000+a.BlockSize(), stats.BlockBytes)
	assert.EqualValues(t, 1, stats.IrregularCount)
}

func TestArena_Close(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		a := NewArena()
		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
	})

	t.Run("AllocateAfterClosePanics", func(t *testing.T) {
		a := NewArena()
		require.NoError(t, a.Close())

		require.Panics(t, func() { a.Allocate(1) })
		require.Panics(t, func() { a.AllocateAligned(8, 0) })
	})
}

func TestArena_Stats(t *testing.T) {
	a := NewArena()
	defer a.Close()

	a.Allocate(100)

	stats := a.Stats()
	assert.Equal(t, a.BlockSize(), stats.BlockSize)
	assert.Equal(t, a.MemoryAllocatedBytes(), stats.MemoryAllocatedBytes)
	assert.Equal(t, a.AllocatedAndUnused(), stats.AllocatedAndUnused)
	assert.Equal(t, a.ApproximateMemoryUsage(), stats.ApproximateMemoryUsage)
	assert.Equal(t, a.IrregularBlockNum(), stats.IrregularBlockNum)
}

func TestArena_AllocationsDoNotOverlap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		blockSize := rapid.SampledFrom([]int{4096, 8192, 1 << 16}).Draw(t, "blockSize").(int)

		a := NewArena(WithBlockSize(blockSize))
		defer a.Close()

		type allocation struct {
			buf     []byte
			pattern byte
		}

		ops := rapid.IntRange(1, 128).Draw(t, "ops").(int)
		allocs := make([]allocation, 0, ops)

		requested := 0
		for i := 0; i < ops; i++ {
			bytes := rapid.IntRange(1, 3000).Draw(t, "bytes").(int)

			var buf []byte
			if rapid.Bool().Draw(t, "aligned").(bool) {
				buf = a.AllocateAligned(bytes, 0)
				if addrOf(buf)%alignUnit != 0 {
					t.Fatalf("allocation %d not aligned", i)
				}
			} else {
				buf = a.Allocate(bytes)
			}

			if len(buf) != bytes {
				t.Fatalf("allocation %d: got %d bytes, want %d", i, len(buf), bytes)
			}

			pattern := byte(i%251) + 1
			for j := range buf {
				buf[j] = pattern
			}

			allocs = append(allocs, allocation{buf: buf, pattern: pattern})
			requested += bytes
		}

		// Every range still holds its own pattern, so no two overlap.
		for i, al := range allocs {
			for j, b := range al.buf {
				if b != al.pattern {
					t.Fatalf("allocation %d corrupted at offset %d", i, j)
				}
			}
		}

		usage := a.ApproximateMemoryUsage()
		if requested > usage {
			t.Fatalf("handed out %d bytes but usage reports %d", requested, usage)
		}

		if ceiling := a.MemoryAllocatedBytes() + len(a.blocks)*pointerSize; usage > ceiling {
			t.Fatalf("usage %d above ceiling %d", usage, ceiling)
		}
	})
}

func BenchmarkArena_Allocate(b *testing.B) {
	a := NewArena(WithBlockSize(1 << 20))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if i&(1<<20-1) == 0 && i > 0 {
			// Recycle so the benchmark's working set stays bounded.
			_ = a.Close()
			a = NewArena(WithBlockSize(1 << 20))
		}

		_ = a.Allocate(48)
	}

	_ = a.Close()
}

func BenchmarkArena_AllocateAligned(b *testing.B) {
	a := NewArena(WithBlockSize(1 << 20))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if i&(1<<20-1) == 0 && i > 0 {
			_ = a.Close()
			a = NewArena(WithBlockSize(1 << 20))
		}

		_ = a.AllocateAligned(48, 0)
	}

	_ = a.Close()
}
