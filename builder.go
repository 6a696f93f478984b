package diskmap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hupe1980/diskmap/codec"
	"github.com/hupe1980/diskmap/internal/nodecache"
	"github.com/hupe1980/diskmap/internal/resource"
	"github.com/hupe1980/diskmap/internal/skiplist"
	"github.com/hupe1980/diskmap/internal/store"
	"github.com/hupe1980/diskmap/keys"
)

// Builder is the composition root of a store: it opens or creates the
// backing file and hands out maps addressed by name, id or header.
//
// A Builder is safe for concurrent use. Closing it invalidates every map it
// issued.
type Builder struct {
	st    *store.Store
	nodes *nodecache.Cached
	rc    *resource.Controller
	cat   *catalog

	opts    options
	logger  *Logger
	metrics MetricsCollector

	indexes *xsync.MapOf[uint64, *index]
	codecs  *xsync.MapOf[string, codec.Codec]

	createMu sync.Mutex
	closed   atomic.Bool
}

// Open opens the store file at path, creating it when it does not exist.
func Open(path string, optFns ...Option) (*Builder, error) {
	o := applyOptions(optFns)
	rc := newController(o)

	st, err := store.Open(path, storeOptions(o, rc)...)
	if err != nil {
		o.logger.WithPath(path).LogOpen(context.Background(), 0, 0, err)
		return nil, translateError(err)
	}
	return newBuilder(st, rc, o)
}

// OpenMemory creates a store that lives in anonymous memory mappings. It
// supports every operation of a file store; its contents are lost on Close.
func OpenMemory(optFns ...Option) (*Builder, error) {
	o := applyOptions(optFns)
	rc := newController(o)

	st, err := store.OpenMemory(storeOptions(o, rc)...)
	if err != nil {
		return nil, translateError(err)
	}
	return newBuilder(st, rc, o)
}

func newController(o options) *resource.Controller {
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   o.memoryLimit,
		MaxFlushWorkers:    int64(o.flushWorkers),
		IOLimitBytesPerSec: int64(o.ioLimit),
	})
}

func storeOptions(o options, rc *resource.Controller) []store.Option {
	return []store.Option{
		store.WithSliceSize(o.sliceSize),
		store.WithMaxFileSize(o.maxFileSize),
		store.WithLogger(o.logger.Logger),
		store.WithResourceController(rc),
	}
}

func newBuilder(st *store.Store, rc *resource.Controller, o options) (*Builder, error) {
	cfg := o.cache
	cfg.Resource = rc
	nodes := nodecache.New(st, cfg)

	b := &Builder{
		st:      st,
		nodes:   nodes,
		rc:      rc,
		opts:    o,
		logger:  o.logger.WithPath(st.Path()),
		metrics: o.metricsCollector,
		indexes: xsync.NewMapOf[uint64, *index](),
		codecs:  xsync.NewMapOf[string, codec.Codec](),
	}

	for _, name := range codec.Builtins() {
		c, _ := codec.ByName(name)
		b.codecs.Store(name, c)
	}
	for _, c := range o.codecs {
		if c != nil {
			b.codecs.Store(c.Name(), c)
		}
	}

	cat, err := openCatalog(nodes)
	if err != nil {
		_ = st.Close()
		b.logger.LogOpen(context.Background(), 0, 0, err)
		return nil, translateError(err)
	}
	b.cat = cat

	maps, _ := cat.count()
	b.logger.LogOpen(context.Background(), st.Size(), int(maps), nil)
	return b, nil
}

func (b *Builder) checkOpen() error {
	if b.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Path returns the store file path, or "" for memory stores.
func (b *Builder) Path() string {
	return b.st.Path()
}

// MapByName returns the map registered under name, creating it with
// loadFactor when it does not exist. Pass Ordered for a skip-list map.
// Reopening a map with a different strategy, load factor or key encoding
// fails with ErrStrategyMismatch.
func MapByName[K, V any](b *Builder, name string, loadFactor uint8, kc keys.Codec[K], opts ...MapOption) (*Map[K, V], error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ix, err := b.registered(b.cat.byName, []byte(name), name, loadFactor, kc.Kind())
	if err != nil {
		return nil, err
	}
	return newMap[K, V](b, ix, name, kc, true, applyMapOptions(opts))
}

// SkipListMap returns the ordered map registered under name, creating it
// when it does not exist. It is MapByName with the Ordered load factor.
func SkipListMap[K, V any](b *Builder, name string, kc keys.Codec[K], opts ...MapOption) (*Map[K, V], error) {
	return MapByName[K, V](b, name, Ordered, kc, opts...)
}

// MapByID returns the map registered under a numeric id, creating it with
// loadFactor when it does not exist.
func MapByID[K, V any](b *Builder, id uint64, loadFactor uint8, kc keys.Codec[K], opts ...MapOption) (*Map[K, V], error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	label := fmt.Sprintf("#%d", id)
	ix, err := b.registered(b.cat.byID, keys.Encode(keys.Uint64(), id), label, loadFactor, kc.Kind())
	if err != nil {
		return nil, err
	}
	return newMap[K, V](b, ix, label, kc, true, applyMapOptions(opts))
}

// MapByHeader returns a map over the index described by h without
// registering it anywhere. A zero h.Position allocates a new index; the
// caller keeps m.Header().Position to find it again. Header-addressed maps
// do not lock unless WithLocking(true) is given.
func MapByHeader[K, V any](b *Builder, h Header, loadFactor uint8, kc keys.Codec[K], opts ...MapOption) (*Map[K, V], error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var (
		ix  *index
		err error
	)
	label := fmt.Sprintf("@%d", h.Position)
	if h.Position == 0 {
		ix, err = b.create(loadFactor, kc.Kind(), "")
		if err == nil {
			label = fmt.Sprintf("@%d", ix.h.Position)
		}
	} else {
		ix, err = b.load(h.Position, label, loadFactor, kc.Kind())
	}
	if err != nil {
		return nil, err
	}
	return newMap[K, V](b, ix, label, kc, false, applyMapOptions(opts))
}

// HeaderAt reads the index header stored at pos.
func (b *Builder) HeaderAt(pos uint64) (Header, error) {
	if err := b.checkOpen(); err != nil {
		return Header{}, err
	}
	h, err := readHeader(b.nodes, pos)
	return h, translateError(err)
}

// registered resolves key in a catalog list, creating and registering a new
// index when it is absent.
func (b *Builder) registered(l *skiplist.List, key []byte, label string, loadFactor uint8, kind keys.Kind) (*index, error) {
	pos, ok, err := b.cat.lookup(l, key)
	if err != nil {
		return nil, translateError(err)
	}
	if ok {
		return b.load(pos, label, loadFactor, kind)
	}

	b.createMu.Lock()
	defer b.createMu.Unlock()

	// Another caller may have created it while we waited.
	if pos, ok, err = b.cat.lookup(l, key); err != nil {
		return nil, translateError(err)
	} else if ok {
		return b.load(pos, label, loadFactor, kind)
	}

	ix, err := b.create(loadFactor, kind, label)
	if err != nil {
		return nil, err
	}
	if err := b.cat.register(l, key, ix.h.Position); err != nil {
		return nil, translateError(err)
	}
	return ix, nil
}

// load returns the shared index for the header at pos.
func (b *Builder) load(pos uint64, label string, loadFactor uint8, kind keys.Kind) (*index, error) {
	if ix, ok := b.indexes.Load(pos); ok {
		if err := checkHeader(label, ix.h, loadFactor, kind); err != nil {
			return nil, err
		}
		return ix, nil
	}

	h, err := readHeader(b.nodes, pos)
	if err != nil {
		return nil, translateError(err)
	}
	if err := checkHeader(label, h, loadFactor, kind); err != nil {
		return nil, err
	}
	ix, err := newIndex(b.nodes, h)
	if err != nil {
		return nil, err
	}
	ix, _ = b.indexes.LoadOrStore(pos, ix)
	return ix, nil
}

func (b *Builder) create(loadFactor uint8, kind keys.Kind, label string) (*index, error) {
	h, err := createHeader(b.nodes, loadFactor, kind)
	b.logger.LogMapCreate(context.Background(), label, h, err)
	if err != nil {
		return nil, translateError(err)
	}
	ix, err := newIndex(b.nodes, h)
	if err != nil {
		return nil, err
	}
	b.indexes.Store(h.Position, ix)
	return ix, nil
}

// codecByID returns the codec a record with the persisted id was written with.
func (b *Builder) codecByID(id uint16) (codec.Codec, error) {
	name, ok := b.cat.codecName(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownCodec, id)
	}
	c, ok := b.codecs.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// bindCodec registers c for decoding and returns its persisted id.
func (b *Builder) bindCodec(c codec.Codec) (uint16, error) {
	if prev, loaded := b.codecs.LoadOrStore(c.Name(), c); loaded && prev != c {
		// A codec name identifies one wire format; keep the first registration.
		c = prev
	}
	id, err := b.cat.codecID(c.Name())
	return id, translateError(err)
}

// MapHeader returns the header of the map registered under name.
func (b *Builder) MapHeader(name string) (Header, bool, error) {
	if err := b.checkOpen(); err != nil {
		return Header{}, false, err
	}
	pos, ok, err := b.cat.lookup(b.cat.byName, []byte(name))
	if err != nil || !ok {
		return Header{}, false, translateError(err)
	}
	h, err := readHeader(b.nodes, pos)
	if err != nil {
		return Header{}, false, translateError(err)
	}
	return h, true, nil
}

// MapNames returns the names of all maps created with MapByName or
// SkipListMap, in byte order.
func (b *Builder) MapNames() ([]string, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	names, err := b.cat.names()
	return names, translateError(err)
}

// Commit persists the allocation pointer and flushes all modified slices to
// the file. It is a no-op for durability on memory stores.
func (b *Builder) Commit() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	err := translateError(b.st.Commit())
	duration := time.Since(start)
	b.metrics.RecordCommit(duration, err)
	b.logger.LogCommit(context.Background(), b.st.Size(), duration, err)
	return err
}

// Close commits, unmaps and closes the store. It is idempotent.
func (b *Builder) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	err := b.st.Close()
	b.nodes.Purge()
	b.indexes.Clear()
	b.logger.LogClose(context.Background(), err)
	return err
}

// Delete closes the store and removes its file.
func (b *Builder) Delete() error {
	b.closed.Store(true)
	err := b.st.Delete()
	b.nodes.Purge()
	b.indexes.Clear()
	b.logger.LogClose(context.Background(), err)
	return err
}

// CacheStats reports the hit rates of the three caches.
type CacheStats struct {
	NodeHits, NodeMisses     int64
	KeyHits, KeyMisses       int64
	RecordHits, RecordMisses int64
	Bytes                    int64
	KeyEntries               int
}

// Stats describes a store.
type Stats struct {
	Path         string
	FileSize     uint64
	SliceSize    int64
	MappedSlices int
	FreeBlocks   int
	FreeBytes    uint64
	MemoryBacked bool
	NamedMaps    uint64
	OpenIndexes  int
	MemoryUsage  int64
	Cache        CacheStats
}

// Stats returns space and cache usage counters.
func (b *Builder) Stats() Stats {
	ss := b.st.Stats()
	cs := b.nodes.Stats()
	var named uint64
	if !b.closed.Load() {
		named, _ = b.cat.count()
	}
	return Stats{
		Path:         b.st.Path(),
		FileSize:     ss.FileSize,
		SliceSize:    ss.SliceSize,
		MappedSlices: ss.MappedSlices,
		FreeBlocks:   ss.FreeBlocks,
		FreeBytes:    ss.FreeBytes,
		MemoryBacked: ss.MemoryBacked,
		NamedMaps:    named,
		OpenIndexes:  b.indexes.Size(),
		MemoryUsage:  b.rc.MemoryUsage(),
		Cache: CacheStats{
			NodeHits:     cs.NodeHits,
			NodeMisses:   cs.NodeMisses,
			KeyHits:      cs.KeyHits,
			KeyMisses:    cs.KeyMisses,
			RecordHits:   cs.RecordHits,
			RecordMisses: cs.RecordMisses,
			Bytes:        cs.Bytes,
			KeyEntries:   cs.KeyEntries,
		},
	}
}
