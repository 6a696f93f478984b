package diskmap

import (
	"log/slog"

	"github.com/hupe1980/diskmap/codec"
	"github.com/hupe1980/diskmap/internal/layout"
	"github.com/hupe1980/diskmap/internal/nodecache"
	"github.com/hupe1980/diskmap/internal/store"
)

// Compression selects how value records are compressed.
type Compression = layout.Compression

const (
	CompressionNone = layout.CompressionNone
	CompressionLZ4  = layout.CompressionLZ4
	CompressionZstd = layout.CompressionZstd
)

// DefaultSliceSize is the size of one memory-mapped window of the store file.
const DefaultSliceSize = store.DefaultSliceSize

type options struct {
	sliceSize        int64
	maxFileSize      uint64
	cache            nodecache.Config
	memoryLimit      int64
	flushWorkers     int
	ioLimit          int
	compression      Compression
	codecs           []codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open and OpenMemory.
type Option func(*options)

// WithSliceSize sets the size of one mapped window. It must be a multiple of
// the OS page size and must stay the same for the lifetime of a file.
func WithSliceSize(n int64) Option {
	return func(o *options) {
		o.sliceSize = n
	}
}

// WithMaxFileSize caps the store size. Allocations beyond it fail.
// Zero means unbounded.
func WithMaxFileSize(n uint64) Option {
	return func(o *options) {
		o.maxFileSize = n
	}
}

// WithNodeCache sets the byte budget of the position→node cache.
// Zero disables it.
func WithNodeCache(bytes int64) Option {
	return func(o *options) {
		o.cache.NodeBytes = bytes
	}
}

// WithKeyCache sets the entry budget of the key→node cache.
// Zero disables it.
func WithKeyCache(entries int64) Option {
	return func(o *options) {
		o.cache.KeyEntries = entries
	}
}

// WithRecordCache sets the byte budget of the position→record cache.
// Zero disables it.
func WithRecordCache(bytes int64) Option {
	return func(o *options) {
		o.cache.RecordBytes = bytes
	}
}

// WithoutCache disables all three caches.
func WithoutCache() Option {
	return func(o *options) {
		o.cache = nodecache.Config{}
	}
}

// WithCacheMemoryLimit bounds the bytes the node and record caches may hold
// together. Inserts beyond the limit are skipped rather than evicting.
func WithCacheMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithFlushWorkers bounds how many mapped slices Commit flushes in parallel.
func WithFlushWorkers(n int) Option {
	return func(o *options) {
		o.flushWorkers = n
	}
}

// WithIORateLimit throttles backup and restore streams to bytesPerSec.
func WithIORateLimit(bytesPerSec int) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithCompression sets the default record compression for maps that do not
// choose their own.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCodecs registers custom value codecs so that records written with them
// can be decoded. Built-in codecs are always registered.
func WithCodecs(codecs ...codec.Codec) Option {
	return func(o *options) {
		o.codecs = append(o.codecs, codecs...)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &diskmap.BasicMetricsCollector{}
//	b, _ := diskmap.Open(path, diskmap.WithMetricsCollector(metrics))
//	// ... use b ...
//	stats := metrics.GetStats()
//	fmt.Printf("Gets: %d, Avg latency: %dns\n", stats.GetCount, stats.GetAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
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

func applyOptions(optFns []Option) options {
	o := options{
		sliceSize:        DefaultSliceSize,
		cache:            nodecache.DefaultConfig(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

type mapOptions struct {
	codec       codec.Codec
	locking     *bool
	compression *Compression
}

// MapOption configures a single map handle.
type MapOption func(*mapOptions)

// WithValueCodec sets the codec new values are written with. Existing
// records stay readable as long as the codec that wrote them is registered.
func WithValueCodec(c codec.Codec) MapOption {
	return func(o *mapOptions) {
		o.codec = c
	}
}

// WithLocking enables or disables the structural lock. Maps obtained by name
// or id lock by default; header-addressed maps do not.
func WithLocking(enabled bool) MapOption {
	return func(o *mapOptions) {
		o.locking = &enabled
	}
}

// WithMapCompression overrides the store-wide record compression.
func WithMapCompression(c Compression) MapOption {
	return func(o *mapOptions) {
		o.compression = &c
	}
}

func applyMapOptions(optFns []MapOption) mapOptions {
	var o mapOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
