package diskmap_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/keys"
)

// shoutCodec stores strings upper-cased as JSON.
type shoutCodec struct{}

func (shoutCodec) Marshal(v any) ([]byte, error) {
	s, _ := v.(string)
	return json.Marshal(strings.ToUpper(s))
}

func (shoutCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (shoutCodec) Name() string { return "shout" }

func TestCodecRegistry_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codecs.dmap")

	b, err := diskmap.Open(path, diskmap.WithCodecs(shoutCodec{}))
	require.NoError(t, err)
	m, err := diskmap.SkipListMap[string, string](b, "m", keys.String(), diskmap.WithValueCodec(shoutCodec{}))
	require.NoError(t, err)
	require.NoError(t, m.Put("greeting", "hello"))
	require.NoError(t, b.Close())

	// Without the codec the record cannot be decoded, but the error names it.
	b, err = diskmap.Open(path)
	require.NoError(t, err)
	m, err = diskmap.SkipListMap[string, string](b, "m", keys.String())
	require.NoError(t, err)
	_, _, err = m.Get("greeting")
	require.ErrorIs(t, err, diskmap.ErrUnknownCodec)
	assert.Contains(t, err.Error(), "shout")

	// Records written with another codec live side by side.
	require.NoError(t, m.Put("plain", "hello"))
	require.NoError(t, b.Close())

	b, err = diskmap.Open(path, diskmap.WithCodecs(shoutCodec{}))
	require.NoError(t, err)
	defer b.Close()
	m, err = diskmap.SkipListMap[string, string](b, "m", keys.String())
	require.NoError(t, err)

	v, ok, err := m.Get("greeting")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "HELLO", v)

	v, ok, err = m.Get("plain")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestMapCompression(t *testing.T) {
	for _, c := range []diskmap.Compression{diskmap.CompressionNone, diskmap.CompressionLZ4, diskmap.CompressionZstd} {
		b := openMemory(t, diskmap.WithCompression(c))
		m, err := diskmap.MapByName[int, string](b, "m", 2, keys.Int())
		require.NoError(t, err)

		long := strings.Repeat("compressible ", 200)
		require.NoError(t, m.Put(1, long))
		require.NoError(t, m.Put(2, "x"))

		v, ok, err := m.Get(1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, long, v)

		v, _, err = m.Get(2)
		require.NoError(t, err)
		assert.Equal(t, "x", v)
	}
}
