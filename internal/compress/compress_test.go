package compress

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/diskmap/internal/layout"
)

func TestCompress_RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox "), 100)

	for _, algo := range []layout.Compression{layout.CompressionLZ4, layout.CompressionZstd} {
		t.Run(Name(algo), func(t *testing.T) {
			out, used, err := Compress(data, algo)
			require.NoError(t, err)
			assert.Equal(t, algo, used)
			assert.Less(t, len(out), len(data))

			got, err := Decompress(out, used)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestCompress_SkipsSmallAndIncompressible(t *testing.T) {
	small := []byte("tiny")
	out, used, err := Compress(small, layout.CompressionZstd)
	require.NoError(t, err)
	assert.Equal(t, layout.CompressionNone, used)
	assert.Equal(t, small, out)

	noise := make([]byte, 4096)
	_, _ = rand.Read(noise)
	out, used, err = Compress(noise, layout.CompressionLZ4)
	require.NoError(t, err)
	assert.Equal(t, layout.CompressionNone, used)
	assert.Equal(t, noise, out)
}

func TestDecompress_Corrupt(t *testing.T) {
	_, err := Decompress([]byte{1}, layout.CompressionLZ4)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decompress([]byte{0xff, 0, 0, 0, 1, 2, 3}, layout.CompressionZstd)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStreams(t *testing.T) {
	data := bytes.Repeat([]byte("stream me "), 10000)

	for _, algo := range []layout.Compression{layout.CompressionNone, layout.CompressionLZ4, layout.CompressionZstd} {
		t.Run(Name(algo), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, algo)
			require.NoError(t, err)
			_, err = w.Write(data)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := NewReader(&buf, algo)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, data, got)
		})
	}
}

func TestParse(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		algo, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, name, Name(algo))
	}
	_, err := Parse("brotli")
	assert.Error(t, err)
}
