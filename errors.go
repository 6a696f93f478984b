package diskmap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/diskmap/internal/matrix"
	"github.com/hupe1980/diskmap/internal/skiplist"
	"github.com/hupe1980/diskmap/internal/store"
)

var (
	// ErrClosed is returned when using a builder, or a map bound to it, after Close.
	ErrClosed = errors.New("diskmap: closed")

	// ErrRangeUnsupported is returned by Above and Below on hash-backed maps.
	ErrRangeUnsupported = errors.New("diskmap: range queries need an ordered map")

	// ErrInvalidLoadFactor is returned for load factors the hash matrix cannot represent.
	ErrInvalidLoadFactor = errors.New("diskmap: invalid load factor")

	// ErrStrategyMismatch is returned when an existing index is reopened with
	// a different strategy, load factor or key kind.
	ErrStrategyMismatch = errors.New("diskmap: index strategy mismatch")

	// ErrKeyTooLarge is returned for encoded keys longer than 65535 bytes.
	ErrKeyTooLarge = errors.New("diskmap: key too large")

	// ErrUnknownCodec is returned when a record names a codec that is not registered.
	ErrUnknownCodec = errors.New("diskmap: unknown codec")

	// ErrNoStructure is returned when a structural view is requested for a
	// value that is not a document.
	ErrNoStructure = errors.New("diskmap: value has no fields")

	// ErrInvalidHeader is returned when a header position does not hold an index header.
	ErrInvalidHeader = errors.New("diskmap: invalid header")

	// ErrCorruptBackup is returned by Restore when a snapshot does not match
	// its manifest.
	ErrCorruptBackup = errors.New("diskmap: corrupt backup")
)

// ErrAttributeType indicates that an attribute was read with a declared type
// that does not match the stored value.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrAttributeType struct {
	Field    string
	Expected FieldType
	Actual   string
	cause    error
}

func (e *ErrAttributeType) Error() string {
	return fmt.Sprintf("diskmap: attribute %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func (e *ErrAttributeType) Unwrap() error { return e.cause }

// ErrMismatch describes how a reopened index differs from the request.
type ErrMismatch struct {
	Name    string
	Field   string
	Stored  string
	Request string
}

func (e *ErrMismatch) Error() string {
	return fmt.Sprintf("diskmap: index %q: stored %s %s, requested %s", e.Name, e.Field, e.Stored, e.Request)
}

func (e *ErrMismatch) Unwrap() error { return ErrStrategyMismatch }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, skiplist.ErrKeyTooLarge) {
		return fmt.Errorf("%w: %w", ErrKeyTooLarge, err)
	}
	if errors.Is(err, matrix.ErrInvalidLoadFactor) {
		return fmt.Errorf("%w: %w", ErrInvalidLoadFactor, err)
	}

	return err
}
