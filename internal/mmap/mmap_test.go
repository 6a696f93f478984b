package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFile_WriteSyncReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.bin")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	page := PageSize()
	require.NoError(t, f.Truncate(int64(2*page)))

	m, err := MapFile(f, int64(page), page)
	require.NoError(t, err)
	assert.Equal(t, page, m.Size())
	assert.Equal(t, int64(page), m.Offset())
	assert.False(t, m.Anonymous())

	copy(m.Bytes()[16:], "Hello, Mmap!")
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	buf := make([]byte, 12)
	_, err = f.ReadAt(buf, int64(page)+16)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Mmap!", string(buf))
}

func TestMapFile_InvalidArgs(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "mmap_test")
	require.NoError(t, err)
	defer f.Close()

	_, err = MapFile(f, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapFile(f, -1, PageSize())
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(PageSize())
	require.NoError(t, err)

	b := m.Bytes()
	assert.Equal(t, byte(0), b[0])
	b[0] = 42
	assert.Equal(t, byte(42), m.Bytes()[0])
	assert.True(t, m.Anonymous())
	assert.NoError(t, m.Sync())
	assert.NoError(t, m.Advise(AccessRandom))

	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Sync(), ErrClosed)
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
}
