package mmap

import (
	"os"
	"sync/atomic"
)

// Mapping is a read-write view of a file window or an anonymous region.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	offset int64
	closed atomic.Bool
	anon   bool
	// unmap and flush are platform-specific.
	unmap func([]byte) error
	flush func([]byte) error
}

// MapFile maps size bytes of f starting at offset as a shared read-write view.
// The file must already be at least offset+size bytes long. offset must be a
// multiple of the platform allocation granularity.
func MapFile(f *os.File, offset int64, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	data, unmap, flush, err := osMapFile(f, offset, size)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:   data,
		offset: offset,
		unmap:  unmap,
		flush:  flush,
	}, nil
}

// MapAnon creates a zero-filled read-write anonymous mapping of size bytes.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, unmap, err := osMapAnon(size)
	if err != nil {
		return nil, err
	}

	return &Mapping{data: data, anon: true, unmap: unmap}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Bytes returns the underlying byte slice.
// The slice is valid only until Close is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Offset returns the file offset the mapping starts at.
func (m *Mapping) Offset() int64 {
	return m.offset
}

// Anonymous reports whether the mapping is not backed by a file.
func (m *Mapping) Anonymous() bool {
	return m.anon
}

// Sync flushes modified pages back to the file synchronously.
// It is a no-op for anonymous mappings.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.anon || m.flush == nil {
		return nil
	}
	return m.flush(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, pattern)
}

// PageSize returns the operating system page size.
func PageSize() int {
	return os.Getpagesize()
}
