package diskmap

import (
	"iter"

	"github.com/hupe1980/diskmap/codec"
	"github.com/hupe1980/diskmap/internal/layout"
)

// Entry is a key with its value.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Iterator is a lazy, forward-only, non-restartable sequence.
//
//	it := m.Keys()
//	for it.Next() {
//	    fmt.Println(it.Value())
//	}
//	if err := it.Err(); err != nil {
//	    ...
//	}
//
// Ordered maps iterate in key order; hash maps iterate bucket by bucket.
// Entries mutated concurrently with the iteration may be skipped or yielded
// twice.
type Iterator[T any] struct {
	next func() (T, bool, error)
	cur  T
	err  error
	done bool
}

func newIterator[T any](next func() (T, bool, error)) *Iterator[T] {
	return &Iterator[T]{next: next}
}

// Next advances the iterator. It returns false at the end or on error.
func (it *Iterator[T]) Next() bool {
	if it.done {
		return false
	}
	v, ok, err := it.next()
	if err != nil || !ok {
		var zero T
		it.cur, it.err, it.done = zero, err, true
		return false
	}
	it.cur = v
	return true
}

// Value returns the current element.
func (it *Iterator[T]) Value() T {
	return it.cur
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}

// Seq adapts the remaining elements to a range-over-func sequence. The
// iteration error is yielded last, with a zero element.
func (it *Iterator[T]) Seq() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for it.Next() {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// nodes walks data nodes, reading records when withRecord is set and
// skipping nodes whose record no longer reads back.
func (m *Map[K, V]) nodes(withRecord bool) func() (*layout.Node, []byte, error) {
	var c *cursor
	return func() (*layout.Node, []byte, error) {
		if err := m.b.checkOpen(); err != nil {
			return nil, nil, err
		}
		if c == nil {
			c = m.ix.cursor(m.locking)
		}
		for {
			n, rec, err := c.next(withRecord)
			if err != nil || n == nil {
				return nil, nil, translateError(err)
			}
			if withRecord && rec == nil {
				continue
			}
			return n, rec, nil
		}
	}
}

// Keys iterates the keys.
func (m *Map[K, V]) Keys() *Iterator[K] {
	next := m.nodes(false)
	return newIterator(func() (K, bool, error) {
		var k K
		n, _, err := next()
		if err != nil || n == nil {
			return k, false, err
		}
		k, err = m.keys.Decode(n.Key)
		return k, err == nil, err
	})
}

// Values iterates the values.
func (m *Map[K, V]) Values() *Iterator[V] {
	next := m.nodes(true)
	return newIterator(func() (V, bool, error) {
		var v V
		n, rec, err := next()
		if err != nil || n == nil {
			return v, false, err
		}
		v, err = m.decode(rec)
		return v, err == nil, err
	})
}

// Entries iterates key/value pairs.
func (m *Map[K, V]) Entries() *Iterator[Entry[K, V]] {
	next := m.nodes(true)
	return newIterator(func() (Entry[K, V], bool, error) {
		var e Entry[K, V]
		n, rec, err := next()
		if err != nil || n == nil {
			return e, false, err
		}
		if e.Key, err = m.keys.Decode(n.Key); err != nil {
			return e, false, err
		}
		e.Value, err = m.decode(rec)
		return e, err == nil, err
	})
}

// DictionaryView iterates keys with the structural view of their values.
func (m *Map[K, V]) DictionaryView() *Iterator[Entry[K, codec.Doc]] {
	next := m.nodes(true)
	return newIterator(func() (Entry[K, codec.Doc], bool, error) {
		var e Entry[K, codec.Doc]
		n, rec, err := next()
		if err != nil || n == nil {
			return e, false, err
		}
		if e.Key, err = m.keys.Decode(n.Key); err != nil {
			return e, false, err
		}
		c, raw, err := m.payload(rec)
		if err != nil {
			return e, false, err
		}
		e.Value, err = structure(c, raw)
		return e, err == nil, err
	})
}

// References iterates the record references.
func (m *Map[K, V]) References() *Iterator[uint64] {
	next := m.nodes(false)
	return newIterator(func() (uint64, bool, error) {
		n, _, err := next()
		if err != nil || n == nil {
			return 0, false, err
		}
		return n.RecordPosition, true, nil
	})
}

// All iterates key/value pairs as a range-over-func sequence. An error ends
// the sequence and is yielded with a zero entry.
func (m *Map[K, V]) All() iter.Seq2[Entry[K, V], error] {
	return m.Entries().Seq()
}
