package arenago

import (
	"sync/atomic"
)

// MetricsCollector defines an interface for collecting block-level metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
//
// Collectors are only invoked on slow paths (block materialization and huge
// page failures), never on the per-allocation fast path, so implementations
// do not need to be especially cheap. They must be safe for concurrent use
// when the arena is a ConcurrentArena.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    blockCounter prometheus.Counter
//	    blockBytes   prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordBlockAllocated(bytes int) {
//	    p.blockCounter.Inc()
//	    p.blockBytes.Add(float64(bytes))
//	}
type MetricsCollector interface {
	// RecordBlockAllocated is called when a standard heap block is
	// materialized. bytes is the block's full size, including any part that
	// is never handed out.
	RecordBlockAllocated(bytes int)

	// RecordHugeBlockAllocated is called when a huge-page-backed mapping is
	// materialized. bytes is the mapped size after page rounding.
	RecordHugeBlockAllocated(bytes int)

	// RecordIrregularBlock is called when an oversized request receives a
	// dedicated exactly-sized block. RecordBlockAllocated fires for the
	// same block.
	RecordIrregularBlock(bytes int)

	// RecordHugePageFallback is called when a huge page mapping fails and
	// the allocation falls back to standard blocks.
	RecordHugePageFallback()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBlockAllocated(int)     {}
func (NoopMetricsCollector) RecordHugeBlockAllocated(int) {}
func (NoopMetricsCollector) RecordIrregularBlock(int)     {}
func (NoopMetricsCollector) RecordHugePageFallback()      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BlockCount        atomic.Int64
	BlockBytes        atomic.Int64
	HugeBlockCount    atomic.Int64
	HugeBlockBytes    atomic.Int64
	IrregularCount    atomic.Int64
	IrregularBytes    atomic.Int64
	HugePageFallbacks atomic.Int64
}

// RecordBlockAllocated implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBlockAllocated(bytes int) {
	b.BlockCount.Add(1)
	b.BlockBytes.Add(int64(bytes))
}

// RecordHugeBlockAllocated implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHugeBlockAllocated(bytes int) {
	b.HugeBlockCount.Add(1)
	b.HugeBlockBytes.Add(int64(bytes))
}

// RecordIrregularBlock implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIrregularBlock(bytes int) {
	b.IrregularCount.Add(1)
	b.IrregularBytes.Add(int64(bytes))
}

// RecordHugePageFallback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHugePageFallback() {
	b.HugePageFallbacks.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BlockCount:        b.BlockCount.Load(),
		BlockBytes:        b.BlockBytes.Load(),
		HugeBlockCount:    b.HugeBlockCount.Load(),
		HugeBlockBytes:    b.HugeBlockBytes.Load(),
		IrregularCount:    b.IrregularCount.Load(),
		IrregularBytes:    b.IrregularBytes.Load(),
		HugePageFallbacks: b.HugePageFallbacks.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BlockCount        int64
	BlockBytes        int64
	HugeBlockCount    int64
	HugeBlockBytes    int64
	IrregularCount    int64
	IrregularBytes    int64
	HugePageFallbacks int64
}

var _ MetricsCollector = NoopMetricsCollector{}
var _ MetricsCollector = (*BasicMetricsCollector)(nil)
