package diskmap_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/keys"
)

func TestBasicMetricsCollector(t *testing.T) {
	mc := &diskmap.BasicMetricsCollector{}
	b := openMemory(t, diskmap.WithMetricsCollector(mc))

	m, err := diskmap.SkipListMap[int, int](b, "m", keys.Int())
	require.NoError(t, err)
	require.NoError(t, m.Put(1, 1))
	require.NoError(t, m.Put(1, 2))
	require.NoError(t, m.Put(2, 2))
	_, _, _ = m.Get(1)
	_, _, _ = m.Get(3)
	_, _ = m.Remove(2)
	_, _ = m.Remove(2)
	_, err = m.Above(0, true)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	s := mc.GetStats()
	assert.Equal(t, int64(3), s.PutCount)
	assert.Equal(t, int64(1), s.PutReplaced)
	assert.Equal(t, int64(2), s.GetCount)
	assert.Equal(t, int64(1), s.GetHits)
	assert.Equal(t, int64(2), s.RemoveCount)
	assert.Equal(t, int64(1), s.RemoveHits)
	assert.Equal(t, int64(1), s.RangeCount)
	assert.Equal(t, int64(1), s.RangeResults)
	assert.Equal(t, int64(1), s.CommitCount)
	assert.Zero(t, s.PutErrors+s.GetErrors+s.RemoveErrors+s.RangeErrors+s.CommitErrors)
}

func TestVictoriaMetricsCollector(t *testing.T) {
	mc := diskmap.NewVictoriaMetricsCollector("test")
	b := openMemory(t, diskmap.WithMetricsCollector(mc))

	m, err := diskmap.MapByName[string, string](b, "m", 1, keys.String())
	require.NoError(t, err)
	require.NoError(t, m.Put("a", "b"))
	_, _, _ = m.Get("a")
	_, err = m.Above("a", true)
	require.ErrorIs(t, err, diskmap.ErrRangeUnsupported)

	var buf bytes.Buffer
	mc.Set().WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `diskmap_puts_total{store="test"} 1`)
	assert.Contains(t, out, `diskmap_get_hits_total{store="test"} 1`)
	assert.Contains(t, out, `diskmap_range_errors_total{store="test"} 1`)
}
