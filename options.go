package rnaget

import (
	"log/slog"
	"time"

	"github.com/hupe1980/rnaget/internal/encoding"
	"github.com/hupe1980/rnaget/internal/ticket"
)

// DefaultBlockCacheSize bounds the decoded matrix blocks kept in memory.
const DefaultBlockCacheSize = 64 << 20

// ResourceLimits bounds what concurrent artifact builds may consume.
// Zero values mean unlimited (MaxConcurrentBuilds defaults to 4).
type ResourceLimits struct {
	// MemoryBytes caps memory held by the decoded block cache.
	MemoryBytes int64
	// MaxConcurrentBuilds caps simultaneously running artifact builds.
	MaxConcurrentBuilds int64
	// WriteBytesPerSec rate-limits artifact payload writes.
	WriteBytesPerSec int64
}

type options struct {
	resolver         Resolver
	ledger           ticket.Ledger
	ttl              time.Duration
	sweepInterval    time.Duration
	logger           *Logger
	metricsCollector MetricsCollector
	blockCacheSize   int64
	limits           ResourceLimits
	compressPayloads bool
	precision        int
	verifyChecksums  bool
	clock            func() time.Time
}

// Option configures a Service.
type Option func(*options)

// WithResolver configures the expression ID resolver used by Query.
func WithResolver(r Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithLedger records issued tickets durably so they survive restarts.
//
// Example with the SQLite catalog:
//
//	catalog, _ := sqlstore.Open("rnaget.db")
//	svc, _ := rnaget.New(ctx, matrices, artifacts,
//	    rnaget.WithResolver(catalog),
//	    rnaget.WithLedger(catalog),
//	)
func WithLedger(l ticket.Ledger) Option {
	return func(o *options) {
		o.ledger = l
	}
}

// WithTTL sets how long tickets stay downloadable.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithSweepInterval sets the period of the background expiry sweep.
// Zero disables it; Sweep can still be called explicitly.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = d
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
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

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &rnaget.BasicMetricsCollector{}
//	svc, _ := rnaget.New(ctx, matrices, artifacts, rnaget.WithMetricsCollector(metrics))
//	// ... use svc ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, cache hits: %d\n", stats.QueryCount, stats.QueryCacheHits)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithBlockCacheSize sets the byte capacity of the decoded block cache used
// for compressed matrix files. Zero disables the cache.
func WithBlockCacheSize(bytes int64) Option {
	return func(o *options) {
		o.blockCacheSize = bytes
	}
}

// WithResourceLimits bounds memory, build concurrency and write throughput.
func WithResourceLimits(l ResourceLimits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithPayloadCompression stores artifact payloads zstd-compressed.
// Downloads are decompressed transparently.
func WithPayloadCompression(enabled bool) Option {
	return func(o *options) {
		o.compressPayloads = enabled
	}
}

// WithPrecision sets the number of decimals written by text formats.
// The default, -1, writes the shortest exact representation; fixed
// decimals round values.
func WithPrecision(decimals int) Option {
	return func(o *options) {
		o.precision = decimals
	}
}

// WithVerifyChecksums verifies every block checksum when a matrix is opened.
func WithVerifyChecksums(verify bool) Option {
	return func(o *options) {
		o.verifyChecksums = verify
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		ttl:              ticket.DefaultTTL,
		sweepInterval:    ticket.DefaultSweepInterval,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		blockCacheSize:   DefaultBlockCacheSize,
		precision:        encoding.DefaultPrecision,
		clock:            time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}
