package store

import (
	"log/slog"

	"github.com/hupe1980/diskmap/internal/resource"
)

// DefaultSliceSize is the size of one mapped window of the store file.
const DefaultSliceSize = 3 << 20

type options struct {
	sliceSize   int64
	maxFileSize uint64
	logger      *slog.Logger
	rc          *resource.Controller
}

// Option configures a Store.
type Option func(*options)

// WithSliceSize sets the mapped window size. It must be a multiple of the page size.
func WithSliceSize(n int64) Option {
	return func(o *options) {
		o.sliceSize = n
	}
}

// WithMaxFileSize caps the allocation pointer. Zero means unbounded.
func WithMaxFileSize(n uint64) Option {
	return func(o *options) {
		o.maxFileSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithResourceController bounds commit flush concurrency.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

func applyOptions(opts []Option) options {
	o := options{
		sliceSize: DefaultSliceSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
