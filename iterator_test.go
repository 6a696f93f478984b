package diskmap_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/codec"
	"github.com/hupe1980/diskmap/keys"
)

func TestIterators(t *testing.T) {
	for _, tt := range strategies {
		t.Run(tt.name, func(t *testing.T) {
			b := openMemory(t)
			m, err := diskmap.MapByName[string, codec.Doc](b, "it", tt.lf, keys.String())
			require.NoError(t, err)

			want := map[string]int64{"a": 1, "b": 2, "c": 3, "d": 4}
			for k, v := range want {
				require.NoError(t, m.Put(k, codec.Doc{"n": v}))
			}
			_, err = m.Remove("d")
			require.NoError(t, err)
			delete(want, "d")

			keysIt := m.Keys()
			var gotKeys []string
			for keysIt.Next() {
				gotKeys = append(gotKeys, keysIt.Value())
			}
			require.NoError(t, keysIt.Err())
			assert.ElementsMatch(t, []string{"a", "b", "c"}, gotKeys)
			assert.False(t, keysIt.Next(), "iterators are not restartable")

			var sum int64
			for v, err := range m.Values().Seq() {
				require.NoError(t, err)
				sum += v["n"].(int64)
			}
			assert.Equal(t, int64(6), sum)

			refs := m.References()
			count := 0
			for refs.Next() {
				d, ok, err := m.StructuralView(refs.Value())
				require.NoError(t, err)
				require.True(t, ok)
				assert.Contains(t, []int64{1, 2, 3}, d["n"])
				count++
			}
			require.NoError(t, refs.Err())
			assert.Equal(t, 3, count)

			views := map[string]codec.Doc{}
			dv := m.DictionaryView()
			for dv.Next() {
				views[dv.Value().Key] = dv.Value().Value
			}
			require.NoError(t, dv.Err())
			for k, n := range want {
				assert.Equal(t, n, views[k]["n"])
			}

			seen := 0
			for range m.All() {
				seen++
				break
			}
			assert.Equal(t, 1, seen)
		})
	}
}

func TestIterators_EmptyMap(t *testing.T) {
	for _, tt := range strategies {
		t.Run(tt.name, func(t *testing.T) {
			b := openMemory(t)
			m, err := diskmap.MapByName[int, int](b, "empty", tt.lf, keys.Int())
			require.NoError(t, err)

			it := m.Entries()
			assert.False(t, it.Next())
			assert.NoError(t, it.Err())
		})
	}
}

func TestIterators_MutationDuringIteration(t *testing.T) {
	for _, tt := range strategies {
		t.Run(tt.name, func(t *testing.T) {
			b := openMemory(t)
			m, err := diskmap.MapByName[string, string](b, "churn", tt.lf, keys.String())
			require.NoError(t, err)

			for i := range 10 {
				require.NoError(t, m.Put(fmt.Sprintf("k%d", i), "v"))
			}

			it := m.Keys()
			require.True(t, it.Next())
			first := it.Value()

			for i := range 10 {
				k := fmt.Sprintf("k%d", i)
				if k == first {
					continue
				}
				_, err := m.Remove(k)
				require.NoError(t, err)
				require.NoError(t, m.Put(k, "again"))
			}
			for i := range 5 {
				require.NoError(t, m.Put(fmt.Sprintf("n%d", i), "new"))
			}

			var rest []string
			for it.Next() {
				rest = append(rest, it.Value())
			}
			require.NoError(t, it.Err())
			assert.NotContains(t, rest, first)
			if tt.lf == diskmap.Ordered {
				assert.IsIncreasing(t, rest)
			}
		})
	}
}
