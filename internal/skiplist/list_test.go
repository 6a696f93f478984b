package skiplist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/diskmap/internal/layout"
	"github.com/hupe1980/diskmap/internal/mmap"
	"github.com/hupe1980/diskmap/internal/nodecache"
	"github.com/hupe1980/diskmap/internal/store"
)

func newList(t *testing.T, cfg nodecache.Config, maxLevel int) (*List, *nodecache.Cached) {
	t.Helper()
	st, err := store.OpenMemory(store.WithSliceSize(int64(mmap.PageSize())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := nodecache.New(st, cfg)
	root, err := c.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, c.PutUint64(root, 0))

	return New(c, root, maxLevel), c
}

func key(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func collect(t *testing.T, l *List) [][]byte {
	t.Helper()
	c, err := l.Cursor()
	require.NoError(t, err)
	var out [][]byte
	for {
		n, err := c.Next()
		require.NoError(t, err)
		if n == nil {
			return out
		}
		out = append(out, n.Key)
	}
}

func TestList_Empty(t *testing.T) {
	l, _ := newList(t, nodecache.DefaultConfig(), 0)

	n, err := l.Find([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, n)

	_, found, err := l.Delete([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	assert.Empty(t, collect(t, l))

	above, err := l.Above([]byte("a"), true)
	require.NoError(t, err)
	assert.True(t, above.IsEmpty())
}

func TestList_UpsertFindDelete(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  nodecache.Config
	}{
		{"cached", nodecache.DefaultConfig()},
		{"uncached", nodecache.Config{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newList(t, tc.cfg, 0)

			perm := rand.Perm(500)
			for _, i := range perm {
				_, existed, err := l.Upsert(key(i), Ref{Position: uint64(i+1) * 8, Size: uint32(i)})
				require.NoError(t, err)
				assert.False(t, existed)
			}

			for i := range 500 {
				n, err := l.Find(key(i))
				require.NoError(t, err)
				require.NotNil(t, n, "key %d", i)
				assert.Equal(t, uint64(i+1)*8, n.RecordPosition)
				assert.Equal(t, uint8(0), n.Level)
			}

			count, err := l.Count()
			require.NoError(t, err)
			assert.Equal(t, uint64(500), count)

			old, existed, err := l.Upsert(key(42), Ref{Position: 99 * 8, Size: 7})
			require.NoError(t, err)
			assert.True(t, existed)
			assert.Equal(t, Ref{Position: 43 * 8, Size: 42}, old)

			n, err := l.Find(key(42))
			require.NoError(t, err)
			assert.Equal(t, uint64(99*8), n.RecordPosition)

			for i := 0; i < 500; i += 2 {
				ref, found, err := l.Delete(key(i))
				require.NoError(t, err)
				require.True(t, found)
				if i != 42 {
					assert.Equal(t, uint64(i+1)*8, ref.Position)
				}
			}

			// Deleting again is a no-op.
			_, found, err := l.Delete(key(0))
			require.NoError(t, err)
			assert.False(t, found)

			for i := range 500 {
				n, err := l.Find(key(i))
				require.NoError(t, err)
				if i%2 == 0 {
					assert.Nil(t, n, "key %d", i)
				} else {
					assert.NotNil(t, n, "key %d", i)
				}
			}

			count, err = l.Count()
			require.NoError(t, err)
			assert.Equal(t, uint64(250), count)
		})
	}
}

func TestList_Ordering(t *testing.T) {
	l, _ := newList(t, nodecache.DefaultConfig(), 0)

	words := []string{"pear", "apple", "fig", "banana", "cherry", "date", "elderberry", "grape"}
	for i, w := range words {
		_, _, err := l.Upsert([]byte(w), Ref{Position: uint64(i+1) * 8})
		require.NoError(t, err)
	}

	sorted := append([]string(nil), words...)
	sort.Strings(sorted)

	var got []string
	for _, k := range collect(t, l) {
		got = append(got, string(k))
	}
	assert.Equal(t, sorted, got)
}

func TestList_AboveBelowPartition(t *testing.T) {
	l, _ := newList(t, nodecache.DefaultConfig(), 0)

	for i := range 100 {
		_, _, err := l.Upsert(key(i*2), Ref{Position: uint64(i*2+1) * 8})
		require.NoError(t, err)
	}

	for _, pivot := range []int{-1, 0, 37, 38, 100, 198, 250} {
		k := key(pivot)
		if pivot < 0 {
			k = []byte{}
		}

		above, err := l.Above(k, false)
		require.NoError(t, err)
		below, err := l.Below(k, false)
		require.NoError(t, err)
		aboveInc, err := l.Above(k, true)
		require.NoError(t, err)
		belowInc, err := l.Below(k, true)
		require.NoError(t, err)

		present := pivot >= 0 && pivot%2 == 0 && pivot < 200
		var at uint64
		if present {
			at = 1
		}

		assert.Zero(t, above.AndCardinality(below), "pivot %d", pivot)
		assert.Equal(t, uint64(100), above.GetCardinality()+below.GetCardinality()+at, "pivot %d", pivot)
		assert.Equal(t, above.GetCardinality()+at, aboveInc.GetCardinality(), "pivot %d", pivot)
		assert.Equal(t, below.GetCardinality()+at, belowInc.GetCardinality(), "pivot %d", pivot)
	}

	above, err := l.Above(key(190), false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{193 * 8, 195 * 8, 197 * 8, 199 * 8}, above.ToArray())
}

func TestList_SharedRoot(t *testing.T) {
	l, c := newList(t, nodecache.DefaultConfig(), 0)

	_, _, err := l.Upsert([]byte("a"), Ref{Position: 8})
	require.NoError(t, err)

	// A second handle on the same root sees the same data.
	other := New(c, l.Root(), 0)
	n, err := other.Find([]byte("a"))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, uint64(8), n.RecordPosition)
}

func TestList_MaxLevelCap(t *testing.T) {
	l, c := newList(t, nodecache.DefaultConfig(), 2)

	for i := range 1000 {
		_, _, err := l.Upsert(key(i), Ref{Position: 8})
		require.NoError(t, err)
	}

	top, err := c.Uint64(l.Root())
	require.NoError(t, err)
	head, err := c.Node(top)
	require.NoError(t, err)
	assert.LessOrEqual(t, int(head.Level), 1)
}

func TestList_FreesDeletedTowers(t *testing.T) {
	l, c := newList(t, nodecache.DefaultConfig(), 0)

	for i := range 64 {
		_, _, err := l.Upsert(key(i), Ref{Position: 8})
		require.NoError(t, err)
	}
	before := c.Store().Stats().FreeBlocks

	for i := range 64 {
		_, _, err := l.Delete(key(i))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, c.Store().Stats().FreeBlocks-before, 64)
	assert.Empty(t, collect(t, l))
}

func TestList_KeyTooLarge(t *testing.T) {
	l, _ := newList(t, nodecache.Config{}, 0)

	_, _, err := l.Upsert(make([]byte, layout.MaxKeySize+1), Ref{})
	assert.ErrorIs(t, err, ErrKeyTooLarge)
}

func TestMaxLevelFor(t *testing.T) {
	assert.Equal(t, DefaultMaxLevel, MaxLevelFor(layout.StrategySkipList, 0))
	assert.Equal(t, DefaultMaxLevel, MaxLevelFor(layout.StrategyFlatHash, 0))
	assert.Equal(t, 20, MaxLevelFor(layout.StrategyFlatHash, 4))
	assert.Equal(t, 12, MaxLevelFor(layout.StrategyMatrixHash, 9))
}

func BenchmarkList_Upsert(b *testing.B) {
	st, err := store.OpenMemory()
	require.NoError(b, err)
	defer st.Close()

	c := nodecache.New(st, nodecache.DefaultConfig())
	root, err := c.Allocate(8)
	require.NoError(b, err)
	l := New(c, root, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := l.Upsert([]byte(fmt.Sprintf("key-%09d", i)), Ref{Position: 8}); err != nil {
			b.Fatal(err)
		}
	}
}

func TestCursor_SurvivesReusedNodes(t *testing.T) {
	l, c := newList(t, nodecache.DefaultConfig(), 0)

	for i := range 10 {
		_, _, err := l.Upsert(key(i), Ref{Position: 8})
		require.NoError(t, err)
	}

	cur, err := l.Cursor()
	require.NoError(t, err)
	n, err := cur.Next()
	require.NoError(t, err)
	require.Equal(t, key(0), n.Key)

	// The cursor now points at key(1). Remove it and scribble over every
	// block its tower released.
	_, _, err = l.Delete(key(1))
	require.NoError(t, err)
	garbage := bytes.Repeat([]byte{'v'}, layout.DataNodeSize(8))
	for range 64 {
		if c.Store().Stats().FreeBlocks == 0 {
			break
		}
		pos, err := c.Allocate(len(garbage))
		require.NoError(t, err)
		require.NoError(t, c.Store().Write(pos, garbage))
	}

	for i := 100; i < 105; i++ {
		_, _, err := l.Upsert(key(i), Ref{Position: 16})
		require.NoError(t, err)
	}

	var got [][]byte
	for {
		n, err := cur.Next()
		require.NoError(t, err)
		if n == nil {
			break
		}
		got = append(got, n.Key)
	}

	want := [][]byte{key(2), key(3), key(4), key(5), key(6), key(7), key(8), key(9),
		key(100), key(101), key(102), key(103), key(104)}
	assert.Equal(t, want, got)
}
