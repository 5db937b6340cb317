package arenago

import "log/slog"

type options struct {
	blockSize        int
	tracker          AllocTracker
	hugePageSize     int
	logger           *Logger
	metricsCollector MetricsCollector
}

// Option configures arena construction. The same options apply to NewArena
// and NewConcurrentArena.
type Option func(*options)

// WithBlockSize configures the standard block size in bytes. The value is
// normalized with OptimizeBlockSize, so the effective BlockSize may differ
// from the requested one.
//
// Larger blocks amortize allocation bookkeeping over more requests at the
// cost of coarser memory growth; the default is MinBlockSize.
func WithBlockSize(blockSize int) Option {
	return func(o *options) {
		o.blockSize = blockSize
	}
}

// WithTracker configures an AllocTracker that is charged for every block
// the arena materializes, starting with the inline block at construction.
// Pass nil to disable tracking.
//
// The arena calls the tracker's FreeMem on Close, so trackers shared with
// other owners must tolerate a second FreeMem call.
func WithTracker(tracker AllocTracker) Option {
	return func(o *options) {
		o.tracker = tracker
	}
}

// WithHugePageSize enables huge-page-backed blocks of the given page
// granularity in bytes (typically 2 MiB on Linux). Standard block refills
// then try a huge mapping first and fall back to heap blocks when the
// machine has no huge pages reserved; see Documentation/admin-guide/mm/hugetlbpage.rst
// for reserving them. On platforms without huge page support the option is
// ignored.
//
// Huge page failures are logged, so pairing this with WithLogger is
// strongly recommended.
func WithHugePageSize(hugePageSize int) Option {
	return func(o *options) {
		o.hugePageSize = hugePageSize
	}
}

// WithLogger configures structured logging. The arena only logs on slow
// paths, never per allocation.
//
// Example with JSON logging:
//
//	logger := arenago.NewJSONLogger(slog.LevelInfo)
//	a := arenago.NewArena(arenago.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}

		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring block
// churn. Like logging it is only consulted on slow paths. Pass nil to
// disable collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &arenago.BasicMetricsCollector{}
//	a := arenago.NewArena(arenago.WithMetricsCollector(metrics))
//	// ... use a ...
//	stats := metrics.GetStats()
//	fmt.Printf("Blocks: %d, Huge fallbacks: %d\n", stats.BlockCount, stats.HugePageFallbacks)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}

		o.metricsCollector = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		blockSize:        MinBlockSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	return o
}
