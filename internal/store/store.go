package store

import (
	"context"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/diskmap/internal/mmap"
	"github.com/hupe1980/diskmap/internal/resource"
)

const (
	// Alignment is the granularity of every allocation.
	Alignment = 8

	// BootstrapSize is the fixed region at the start of the file. Nothing is
	// ever allocated below it, so position 0 always means "no reference".
	BootstrapSize = 256

	// FormatVersion is the on-disk format version.
	FormatVersion = 1

	offMagic    = 0
	offVersion  = 4
	offFileSize = 8
)

var magic = [4]byte{'D', 'M', 'A', 'P'}

type slice struct {
	mu    sync.Mutex
	m     *mmap.Mapping
	dirty atomic.Bool
}

// Store is a growable byte-addressable file accessed through fixed-size
// memory-mapped slices. Positions are absolute file offsets.
type Store struct {
	path      string
	file      *os.File // nil for memory-backed stores
	sliceSize int64
	maxSize   uint64

	fileSize atomic.Uint64
	free     *freeList

	slicesMu sync.RWMutex
	slices   []*slice

	closed atomic.Bool
	logger *slog.Logger
	rc     *resource.Controller
}

// Open opens or creates the store file at path.
func Open(path string, opts ...Option) (*Store, error) {
	o := applyOptions(opts)
	if err := validateSliceSize(o.sliceSize); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	s := newStore(path, f, o)

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if fi.Size() >= BootstrapSize {
		if err := s.loadBootstrap(); err != nil {
			f.Close()
			return nil, err
		}
		o.logger.Debug("store opened", "path", path, "file_size", s.fileSize.Load())
		return s, nil
	}

	if err := s.initBootstrap(); err != nil {
		s.closeSlices()
		f.Close()
		return nil, err
	}
	o.logger.Debug("store created", "path", path, "slice_size", o.sliceSize)
	return s, nil
}

// OpenMemory creates a store backed by anonymous mappings. Its contents are
// lost on Close.
func OpenMemory(opts ...Option) (*Store, error) {
	o := applyOptions(opts)
	if err := validateSliceSize(o.sliceSize); err != nil {
		return nil, err
	}

	s := newStore("", nil, o)
	if err := s.initBootstrap(); err != nil {
		s.closeSlices()
		return nil, err
	}
	return s, nil
}

func newStore(path string, f *os.File, o options) *Store {
	return &Store{
		path:      path,
		file:      f,
		sliceSize: o.sliceSize,
		maxSize:   o.maxFileSize,
		free:      newFreeList(),
		logger:    o.logger,
		rc:        o.rc,
	}
}

func validateSliceSize(n int64) error {
	if n <= 0 || n%int64(mmap.PageSize()) != 0 {
		return ErrInvalidSliceSize
	}
	return nil
}

func (s *Store) initBootstrap() error {
	var hdr [BootstrapSize]byte
	copy(hdr[offMagic:], magic[:])
	binary.LittleEndian.PutUint16(hdr[offVersion:], FormatVersion)
	binary.LittleEndian.PutUint64(hdr[offFileSize:], BootstrapSize)

	s.fileSize.Store(BootstrapSize)
	return s.Write(0, hdr[:])
}

func (s *Store) loadBootstrap() error {
	var hdr [16]byte
	if _, err := s.file.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("store: read bootstrap: %w", err)
	}
	if [4]byte(hdr[offMagic:offMagic+4]) != magic {
		return ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[offVersion:]); v != FormatVersion {
		return &VersionError{Version: v}
	}

	size := binary.LittleEndian.Uint64(hdr[offFileSize:])
	if size < BootstrapSize {
		size = BootstrapSize
	}
	s.fileSize.Store(size)
	return nil
}

// Path returns the backing file path, or "" for memory stores.
func (s *Store) Path() string {
	return s.path
}

// SliceSize returns the mapped window size.
func (s *Store) SliceSize() int64 {
	return s.sliceSize
}

// Size returns the allocation pointer.
func (s *Store) Size() uint64 {
	return s.fileSize.Load()
}

// Allocate reserves size bytes and returns their position. Reclaimed space
// is reused first-fit by size; otherwise the allocation pointer advances.
func (s *Store) Allocate(size int) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if size <= 0 {
		return 0, ErrInvalidSize
	}

	n := alignUp(uint64(size))

	if pos, ok := s.free.take(n); ok {
		return pos, nil
	}

	for {
		cur := s.fileSize.Load()
		next := cur + n
		if s.maxSize > 0 && next > s.maxSize {
			return 0, ErrStoreFull
		}
		if s.fileSize.CompareAndSwap(cur, next) {
			return cur, nil
		}
	}
}

// Deallocate marks [position, position+size) reusable. The bytes are not cleared.
func (s *Store) Deallocate(position uint64, size int) {
	if position < BootstrapSize || size <= 0 || s.closed.Load() {
		return
	}
	s.free.put(position, alignUp(uint64(size)))
}

// Read copies size bytes starting at position. Reading past the allocation
// pointer yields nil and no error: the caller treats it as absent.
func (s *Store) Read(position uint64, size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if s.beyond(position, uint64(size)) {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		return nil, nil
	}
	buf := make([]byte, size)
	ok, err := s.ReadInto(position, buf)
	if err != nil || !ok {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills dst from position. It reports false when the range lies
// beyond the allocation pointer.
func (s *Store) ReadInto(position uint64, dst []byte) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	if s.beyond(position, uint64(len(dst))) {
		return false, nil
	}

	err := s.span(position, len(dst), func(sl *slice, off int64, lo, hi int) {
		copy(dst[lo:hi], sl.m.Bytes()[off:])
	})
	return err == nil, err
}

// Write copies data to position. The range must lie within allocated space.
func (s *Store) Write(position uint64, data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.beyond(position, uint64(len(data))) {
		return &OutOfBoundsError{Position: position, Size: len(data), FileSize: s.fileSize.Load()}
	}

	return s.span(position, len(data), func(sl *slice, off int64, lo, hi int) {
		copy(sl.m.Bytes()[off:], data[lo:hi])
		sl.dirty.Store(true)
	})
}

// WriteObject marshals v and writes it at position.
func (s *Store) WriteObject(position uint64, v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	return s.Write(position, data)
}

// ReadObject reads size bytes at position into v. It reports false when the
// range is beyond the allocation pointer.
func (s *Store) ReadObject(position uint64, size int, v encoding.BinaryUnmarshaler) (bool, error) {
	data, err := s.Read(position, size)
	if err != nil || data == nil {
		return false, err
	}
	if err := v.UnmarshalBinary(data); err != nil {
		return false, err
	}
	return true, nil
}

// beyond reports whether [position, position+size) reaches past the
// allocation pointer. It does not overflow for positions near 2^64.
func (s *Store) beyond(position, size uint64) bool {
	fs := s.fileSize.Load()
	return position > fs || size > fs-position
}

// span walks the slices covering [position, position+size) and calls fn for
// each chunk while holding that slice's lock. lo and hi index the caller's
// buffer; off is the offset within the slice.
func (s *Store) span(position uint64, size int, fn func(sl *slice, off int64, lo, hi int)) error {
	done := 0
	for done < size {
		pos := position + uint64(done)
		idx := int(pos / uint64(s.sliceSize))
		off := int64(pos % uint64(s.sliceSize))
		n := min(size-done, int(s.sliceSize-off))

		sl, err := s.slice(idx)
		if err != nil {
			return err
		}

		sl.mu.Lock()
		if s.closed.Load() {
			sl.mu.Unlock()
			return ErrClosed
		}
		fn(sl, off, done, done+n)
		sl.mu.Unlock()

		done += n
	}
	return nil
}

// word runs fn on the 8 bytes at position under the owning slice lock.
func (s *Store) word(position uint64, fn func(b []byte, sl *slice)) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if position%Alignment != 0 {
		return ErrMisaligned
	}
	if s.beyond(position, 8) {
		return &OutOfBoundsError{Position: position, Size: 8, FileSize: s.fileSize.Load()}
	}

	sl, err := s.slice(int(position / uint64(s.sliceSize)))
	if err != nil {
		return err
	}
	off := position % uint64(s.sliceSize)

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	fn(sl.m.Bytes()[off:off+8], sl)
	return nil
}

// Uint64 reads the little-endian word at position. Positions past the
// allocation pointer read as zero.
func (s *Store) Uint64(position uint64) (uint64, error) {
	if s.beyond(position, 8) && !s.closed.Load() {
		return 0, nil
	}
	var v uint64
	err := s.word(position, func(b []byte, _ *slice) {
		v = binary.LittleEndian.Uint64(b)
	})
	return v, err
}

// PutUint64 writes v at position.
func (s *Store) PutUint64(position, v uint64) error {
	return s.word(position, func(b []byte, sl *slice) {
		binary.LittleEndian.PutUint64(b, v)
		sl.dirty.Store(true)
	})
}

// AddUint64 adds delta to the word at position and returns the new value.
// Negative deltas are expressed as two's complement, as with atomic.AddUint64.
func (s *Store) AddUint64(position, delta uint64) (uint64, error) {
	var v uint64
	err := s.word(position, func(b []byte, sl *slice) {
		v = binary.LittleEndian.Uint64(b) + delta
		binary.LittleEndian.PutUint64(b, v)
		sl.dirty.Store(true)
	})
	return v, err
}

// CompareAndSwapUint64 sets the word at position to new if it holds old.
func (s *Store) CompareAndSwapUint64(position, old, new uint64) (bool, error) {
	var swapped bool
	err := s.word(position, func(b []byte, sl *slice) {
		if binary.LittleEndian.Uint64(b) == old {
			binary.LittleEndian.PutUint64(b, new)
			sl.dirty.Store(true)
			swapped = true
		}
	})
	return swapped, err
}

// slice returns the mapped window idx, mapping it (and growing the file) on first use.
func (s *Store) slice(idx int) (*slice, error) {
	s.slicesMu.RLock()
	if idx < len(s.slices) && s.slices[idx] != nil {
		sl := s.slices[idx]
		s.slicesMu.RUnlock()
		return sl, nil
	}
	s.slicesMu.RUnlock()

	s.slicesMu.Lock()
	defer s.slicesMu.Unlock()

	if s.closed.Load() {
		return nil, ErrClosed
	}
	if idx < len(s.slices) && s.slices[idx] != nil {
		return s.slices[idx], nil
	}

	m, err := s.mapSlice(idx)
	if err != nil {
		return nil, fmt.Errorf("store: map slice %d: %w", idx, err)
	}

	if idx >= len(s.slices) {
		s.slices = append(s.slices, make([]*slice, idx+1-len(s.slices))...)
	}
	sl := &slice{m: m}
	s.slices[idx] = sl

	s.logger.Debug("store slice mapped", "index", idx, "offset", m.Offset())
	return sl, nil
}

func (s *Store) mapSlice(idx int) (*mmap.Mapping, error) {
	if s.file == nil {
		return mmap.MapAnon(int(s.sliceSize))
	}

	offset := int64(idx) * s.sliceSize
	end := offset + s.sliceSize

	fi, err := s.file.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < end {
		if err := s.file.Truncate(end); err != nil {
			return nil, err
		}
	}

	m, err := mmap.MapFile(s.file, offset, int(s.sliceSize))
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.AccessRandom)
	return m, nil
}

// Commit persists the allocation pointer and flushes every modified slice.
// Flushing is best effort: a failing slice does not stop the others, and all
// failures are returned joined.
func (s *Store) Commit() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.commit()
}

func (s *Store) commit() error {
	if err := s.PutUint64(offFileSize, s.fileSize.Load()); err != nil {
		return err
	}
	if s.file == nil {
		return nil
	}

	s.slicesMu.RLock()
	dirty := make([]*slice, 0, len(s.slices))
	for _, sl := range s.slices {
		if sl != nil && sl.dirty.Swap(false) {
			dirty = append(dirty, sl)
		}
	}
	s.slicesMu.RUnlock()

	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	for _, sl := range dirty {
		// Background never cancels, so the slot is always granted.
		_ = s.rc.AcquireFlush(context.Background())
		g.Go(func() error {
			defer s.rc.ReleaseFlush()
			if err := sl.m.Sync(); err != nil {
				sl.dirty.Store(true)
				mu.Lock()
				errs = append(errs, fmt.Errorf("store: flush slice at %d: %w", sl.m.Offset(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("store committed", "path", s.path, "file_size", s.fileSize.Load(), "flushed_slices", len(dirty))
	return errors.Join(errs...)
}

// Close commits and unmaps the store. It is idempotent.
func (s *Store) Close() error {
	if s.closed.Load() {
		return nil
	}

	err := s.commit()

	s.slicesMu.Lock()
	if s.closed.Swap(true) {
		s.slicesMu.Unlock()
		return nil
	}
	err = errors.Join(err, s.closeSlices())
	s.slicesMu.Unlock()

	s.free.reset()

	if s.file != nil {
		err = errors.Join(err, s.file.Close())
	}
	return err
}

// closeSlices unmaps every slice. Callers hold slicesMu or own the store exclusively.
func (s *Store) closeSlices() error {
	var errs []error
	for _, sl := range s.slices {
		if sl == nil {
			continue
		}
		sl.mu.Lock()
		errs = append(errs, sl.m.Close())
		sl.mu.Unlock()
	}
	s.slices = nil
	return errors.Join(errs...)
}

// Delete closes the store and removes its file.
func (s *Store) Delete() error {
	err := s.Close()
	if s.path != "" {
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	return err
}

// Stats describes the store's space usage.
type Stats struct {
	FileSize     uint64
	SliceSize    int64
	MappedSlices int
	FreeBlocks   int
	FreeBytes    uint64
	MemoryBacked bool
}

// Stats returns space usage counters.
func (s *Store) Stats() Stats {
	s.slicesMu.RLock()
	mapped := 0
	for _, sl := range s.slices {
		if sl != nil {
			mapped++
		}
	}
	s.slicesMu.RUnlock()

	blocks, bytes := s.free.stats()
	return Stats{
		FileSize:     s.fileSize.Load(),
		SliceSize:    s.sliceSize,
		MappedSlices: mapped,
		FreeBlocks:   blocks,
		FreeBytes:    bytes,
		MemoryBacked: s.file == nil,
	}
}

func alignUp(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
