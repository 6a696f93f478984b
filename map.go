package diskmap

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/diskmap/codec"
	"github.com/hupe1980/diskmap/internal/compress"
	"github.com/hupe1980/diskmap/internal/layout"
	"github.com/hupe1980/diskmap/internal/skiplist"
	"github.com/hupe1980/diskmap/internal/store"
	"github.com/hupe1980/diskmap/keys"
)

// Map is a typed handle over one persisted index. Keys are stored in their
// keys.Codec encoding and compared bytewise; values are stored as records
// written with the handle's codec.
//
// Handles are cheap. Several handles over the same index share its locks;
// handles with locking disabled leave concurrency to the caller.
type Map[K, V any] struct {
	b    *Builder
	ix   *index
	name string

	keys        keys.Codec[K]
	codec       codec.Codec
	codecID     uint16
	compression Compression
	locking     bool
}

func newMap[K, V any](b *Builder, ix *index, name string, kc keys.Codec[K], locking bool, o mapOptions) (*Map[K, V], error) {
	c := o.codec
	if c == nil {
		c = codec.For[V]()
	}
	id, err := b.bindCodec(c)
	if err != nil {
		return nil, err
	}

	m := &Map[K, V]{
		b:           b,
		ix:          ix,
		name:        name,
		keys:        kc,
		codec:       c,
		codecID:     id,
		compression: b.opts.compression,
		locking:     locking,
	}
	if o.locking != nil {
		m.locking = *o.locking
	}
	if o.compression != nil {
		m.compression = *o.compression
	}
	return m, nil
}

// Name returns the map's name, "#id" for id-addressed maps or "@position"
// for header-addressed maps.
func (m *Map[K, V]) Name() string {
	return m.name
}

// Strategy returns the structure the map is built on.
func (m *Map[K, V]) Strategy() Strategy {
	return m.ix.h.Strategy
}

// Ordered reports whether the map supports Above and Below.
func (m *Map[K, V]) Ordered() bool {
	return m.ix.ordered()
}

// Header reads the map's current header, including its record count.
func (m *Map[K, V]) Header() (Header, error) {
	if err := m.b.checkOpen(); err != nil {
		return Header{}, err
	}
	h, err := readHeader(m.b.nodes, m.ix.h.Position)
	return h, translateError(err)
}

// Locker returns the structural lock shared by all handles over this index.
// Holding its write lock excludes every operation of locking handles.
func (m *Map[K, V]) Locker() *sync.RWMutex {
	return &m.ix.mu
}

func (m *Map[K, V]) key(k K) []byte {
	return m.keys.Append(nil, k)
}

func (m *Map[K, V]) encode(v V) ([]byte, error) {
	payload, err := m.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	payload, algo, err := compress.Compress(payload, m.compression)
	if err != nil {
		return nil, err
	}
	return layout.EncodeRecord(layout.RecordHeader{CodecID: m.codecID, Compression: algo}, payload), nil
}

// payload returns the codec and uncompressed payload of a stored record.
func (m *Map[K, V]) payload(rec []byte) (codec.Codec, []byte, error) {
	h, payload, err := layout.DecodeRecord(rec)
	if err != nil {
		return nil, nil, err
	}
	c := m.codec
	if h.CodecID != m.codecID {
		if c, err = m.b.codecByID(h.CodecID); err != nil {
			return nil, nil, err
		}
	}
	raw, err := compress.Decompress(payload, h.Compression)
	if err != nil {
		return nil, nil, err
	}
	return c, raw, nil
}

func (m *Map[K, V]) decode(rec []byte) (V, error) {
	var v V
	c, raw, err := m.payload(rec)
	if err != nil {
		return v, err
	}
	err = c.Unmarshal(raw, &v)
	return v, err
}

// Get returns the value stored under k.
func (m *Map[K, V]) Get(k K) (v V, ok bool, err error) {
	start := time.Now()
	defer func() { m.b.metrics.RecordGet(time.Since(start), ok, err) }()

	if err = m.b.checkOpen(); err != nil {
		return v, false, err
	}

	key := m.key(k)
	var rec []byte
	err = m.ix.read(key, m.locking, func(l *skiplist.List) error {
		n, err := l.Find(key)
		if err != nil || n == nil {
			return err
		}
		rec, err = m.b.nodes.Record(n.RecordPosition)
		return err
	})
	if err != nil {
		return v, false, translateError(err)
	}
	if rec == nil {
		return v, false, nil
	}

	if v, err = m.decode(rec); err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Put stores v under k, replacing and freeing any previous value.
func (m *Map[K, V]) Put(k K, v V) (err error) {
	start := time.Now()
	var replaced bool
	defer func() { m.b.metrics.RecordPut(time.Since(start), replaced, err) }()

	if err = m.b.checkOpen(); err != nil {
		return err
	}

	key := m.key(k)
	if len(key) > layout.MaxKeySize {
		return ErrKeyTooLarge
	}
	rec, err := m.encode(v)
	if err != nil {
		return err
	}

	err = m.ix.write(key, true, m.locking, func(l *skiplist.List) error {
		pos, err := m.b.nodes.WriteRecord(rec)
		if err != nil {
			return err
		}
		old, existed, err := l.Upsert(key, skiplist.Ref{Position: pos, Size: uint32(len(rec))})
		if err != nil {
			// The record may already be linked; leaking it is safer than freeing it.
			return err
		}
		if existed {
			replaced = true
			m.b.nodes.FreeRecord(old.Position, int(old.Size))
			return nil
		}
		_, err = m.b.nodes.AddUint64(m.ix.countPosition(), 1)
		return err
	})
	return translateError(err)
}

// Remove deletes k and frees its value. Removing a missing key is a no-op
// and reports false.
func (m *Map[K, V]) Remove(k K) (removed bool, err error) {
	start := time.Now()
	defer func() { m.b.metrics.RecordRemove(time.Since(start), removed, err) }()

	if err = m.b.checkOpen(); err != nil {
		return false, err
	}

	key := m.key(k)
	err = m.ix.write(key, false, m.locking, func(l *skiplist.List) error {
		ref, found, err := l.Delete(key)
		if err != nil || !found {
			return err
		}
		removed = true
		m.b.nodes.FreeRecord(ref.Position, int(ref.Size))
		_, err = m.b.nodes.AddUint64(m.ix.countPosition(), ^uint64(0))
		return err
	})
	return removed, translateError(err)
}

// ContainsKey reports whether k is present.
func (m *Map[K, V]) ContainsKey(k K) (bool, error) {
	_, ok, err := m.RecordReferenceOf(k)
	return ok, err
}

// Size returns the maintained record count. It is advisory: it is kept with
// atomic adds and only a full iteration is authoritative.
func (m *Map[K, V]) Size() (uint64, error) {
	if err := m.b.checkOpen(); err != nil {
		return 0, err
	}
	n, err := m.b.nodes.Uint64(m.ix.countPosition())
	return n, translateError(err)
}

// RecordReferenceOf returns the position of the record stored under k.
// References stay valid until k is overwritten or removed.
func (m *Map[K, V]) RecordReferenceOf(k K) (ref uint64, ok bool, err error) {
	if err := m.b.checkOpen(); err != nil {
		return 0, false, err
	}

	key := m.key(k)
	err = m.ix.read(key, m.locking, func(l *skiplist.List) error {
		n, err := l.Find(key)
		if err != nil || n == nil {
			return err
		}
		ref, ok = n.RecordPosition, true
		return nil
	})
	return ref, ok, translateError(err)
}

func (m *Map[K, V]) record(ref uint64) ([]byte, error) {
	if err := m.b.checkOpen(); err != nil {
		return nil, err
	}
	if ref < store.BootstrapSize {
		return nil, nil
	}
	rec, err := m.b.nodes.Record(ref)
	return rec, translateError(err)
}

// GetByReference decodes the record at ref. A reference that no longer
// holds a record reads as absent.
//
// Removed and overwritten records are deallocated, and their space is
// handed to later records. A reference kept past the removal or overwrite
// of its key may therefore read another key's value; callers must drop
// references when the key changes.
func (m *Map[K, V]) GetByReference(ref uint64) (v V, ok bool, err error) {
	rec, err := m.record(ref)
	if err != nil || rec == nil {
		return v, false, err
	}
	if v, err = m.decode(rec); err != nil {
		return v, false, err
	}
	return v, true, nil
}

// StructuralView decodes the record at ref into a field map without
// materializing V. It fails with ErrNoStructure for values that are not
// documents or objects.
func (m *Map[K, V]) StructuralView(ref uint64) (codec.Doc, bool, error) {
	rec, err := m.record(ref)
	if err != nil || rec == nil {
		return nil, false, err
	}
	c, raw, err := m.payload(rec)
	if err != nil {
		return nil, false, err
	}
	d, err := structure(c, raw)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func structure(c codec.Codec, raw []byte) (codec.Doc, error) {
	if _, ok := c.(codec.Document); ok {
		var d codec.Doc
		if err := c.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	}

	var x any
	if err := c.Unmarshal(raw, &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case codec.Doc:
		return v, nil
	case map[string]any:
		return codec.DocFrom(v)
	default:
		return nil, ErrNoStructure
	}
}

// Attribute reads one field of the record at ref. f.Name may be a dotted
// path into nested documents. A stored value whose type differs from f.Type
// fails with *ErrAttributeType; a missing field reads as absent.
func (m *Map[K, V]) Attribute(f FieldDescriptor, ref uint64) (any, bool, error) {
	d, ok, err := m.StructuralView(ref)
	if err != nil || !ok {
		return nil, false, err
	}
	v, ok := d.Lookup(f.Name)
	if !ok {
		return nil, false, nil
	}
	out, err := f.Type.coerce(f.Name, v)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Above returns the record references of all keys greater than k, or
// greater than or equal to k when inclusive is set.
func (m *Map[K, V]) Above(k K, inclusive bool) (*roaring64.Bitmap, error) {
	return m.rangeQuery(k, func(l *skiplist.List, key []byte) (*roaring64.Bitmap, error) {
		return l.Above(key, inclusive)
	})
}

// Below returns the record references of all keys less than k, or less than
// or equal to k when inclusive is set.
func (m *Map[K, V]) Below(k K, inclusive bool) (*roaring64.Bitmap, error) {
	return m.rangeQuery(k, func(l *skiplist.List, key []byte) (*roaring64.Bitmap, error) {
		return l.Below(key, inclusive)
	})
}

func (m *Map[K, V]) rangeQuery(k K, fn func(l *skiplist.List, key []byte) (*roaring64.Bitmap, error)) (out *roaring64.Bitmap, err error) {
	start := time.Now()
	defer func() {
		var n uint64
		if out != nil {
			n = out.GetCardinality()
		}
		m.b.metrics.RecordRange(n, time.Since(start), err)
	}()

	if err = m.b.checkOpen(); err != nil {
		return nil, err
	}
	if !m.ix.ordered() {
		return nil, ErrRangeUnsupported
	}

	key := m.key(k)
	err = m.ix.read(key, m.locking, func(l *skiplist.List) error {
		var err error
		out, err = fn(l, key)
		return err
	})
	return out, translateError(err)
}
