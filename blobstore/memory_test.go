package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("0123456789")
	require.NoError(t, store.Put(ctx, "a/one", data))
	data[0] = 'x'

	w, err := store.Create(ctx, "a/two")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one"}, names, "unclosed blobs are invisible")

	require.NoError(t, w.Close())
	names, err = store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one", "a/two"}, names)

	b, err := store.Open(ctx, "a/one")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, int64(10), b.Size())

	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "89", string(buf[:n]))

	rc, err := b.ReadRange(ctx, 0, 3)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "012", string(got))

	require.NoError(t, store.Delete(ctx, "a/one"))
	_, err = store.Open(ctx, "a/one")
	assert.ErrorIs(t, err, ErrNotFound)
}
