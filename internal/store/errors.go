package store

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrStoreFull is returned when an allocation would exceed the configured maximum file size.
	ErrStoreFull = errors.New("store: maximum file size reached")
	// ErrBadMagic is returned when an existing file is not a store file.
	ErrBadMagic = errors.New("store: bad magic")
	// ErrInvalidSize is returned for zero or negative allocation sizes.
	ErrInvalidSize = errors.New("store: invalid size")
	// ErrInvalidSliceSize is returned when the slice size is not a positive multiple of the page size.
	ErrInvalidSliceSize = errors.New("store: slice size must be a positive multiple of the page size")
	// ErrMisaligned is returned by word operations on positions that are not 8-byte aligned.
	ErrMisaligned = errors.New("store: position is not 8-byte aligned")
)

// OutOfBoundsError is returned when writing past the allocation pointer.
type OutOfBoundsError struct {
	Position uint64
	Size     int
	FileSize uint64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("store: write [%d, %d) beyond allocated size %d", e.Position, e.Position+uint64(e.Size), e.FileSize)
}

// VersionError is returned when the file was written by an unsupported format version.
type VersionError struct {
	Version uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("store: unsupported format version %d", e.Version)
}
