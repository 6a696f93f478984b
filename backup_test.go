package diskmap_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/blobstore"
	"github.com/hupe1980/diskmap/keys"
)

func fillUsers(t *testing.T, b *diskmap.Builder, n int) {
	t.Helper()
	m, err := diskmap.MapByName[int, user](b, "users", 8, keys.Int())
	require.NoError(t, err)
	for i := range n {
		require.NoError(t, m.Put(i, user{Name: fmt.Sprintf("user-%d", i), Age: i % 90}))
	}
}

func checkUsers(t *testing.T, b *diskmap.Builder, n int) {
	t.Helper()
	m, err := diskmap.MapByName[int, user](b, "users", 8, keys.Int())
	require.NoError(t, err)
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(n), size)
	for _, i := range []int{0, n / 3, n - 1} {
		u, ok, err := m.Get(i)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("user-%d", i), u.Name)
	}
}

func TestBackupRestore(t *testing.T) {
	stores := map[string]func(t *testing.T) blobstore.BlobStore{
		"memory": func(*testing.T) blobstore.BlobStore { return blobstore.NewMemoryStore() },
		"local":  func(t *testing.T) blobstore.BlobStore { return blobstore.NewLocalStore(t.TempDir()) },
	}
	compressions := []diskmap.Compression{diskmap.CompressionNone, diskmap.CompressionLZ4, diskmap.CompressionZstd}

	for name, newStore := range stores {
		for _, c := range compressions {
			t.Run(fmt.Sprintf("%s/%d", name, c), func(t *testing.T) {
				ctx := context.Background()
				dst := newStore(t)

				b := openMemory(t)
				fillUsers(t, b, 2_000)

				m, err := b.Backup(ctx, dst, "nightly", diskmap.WithBackupCompression(c))
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(m.Blob, "nightly/"))
				assert.Equal(t, b.Stats().FileSize, m.Size)

				stored, err := diskmap.ReadManifest(ctx, dst, "nightly")
				require.NoError(t, err)
				assert.Equal(t, m.Checksum, stored.Checksum)

				path := filepath.Join(t.TempDir(), "restored.dmap")
				restored, err := diskmap.Restore(ctx, dst, "nightly", path)
				require.NoError(t, err)
				defer restored.Close()

				checkUsers(t, restored, 2_000)
			})
		}
	}
}

func TestRestore_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	dst := blobstore.NewMemoryStore()

	b := openMemory(t)
	fillUsers(t, b, 100)
	m, err := b.Backup(ctx, dst, "db", diskmap.WithBackupCompression(diskmap.CompressionNone))
	require.NoError(t, err)

	data, err := blobstore.ReadAll(ctx, dst, m.Blob)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, dst.Put(ctx, m.Blob, data))

	path := filepath.Join(t.TempDir(), "corrupt.dmap")
	_, err = diskmap.Restore(ctx, dst, "db", path)
	require.ErrorIs(t, err, diskmap.ErrCorruptBackup)
	assert.NoFileExists(t, path)
}

func TestRestore_RefusesExistingTarget(t *testing.T) {
	ctx := context.Background()
	dst := blobstore.NewMemoryStore()

	b := openMemory(t)
	fillUsers(t, b, 10)
	_, err := b.Backup(ctx, dst, "db")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "existing.dmap")
	existing, err := diskmap.Open(path)
	require.NoError(t, err)
	require.NoError(t, existing.Close())

	_, err = diskmap.Restore(ctx, dst, "db", path)
	require.Error(t, err)

	_, err = diskmap.Restore(ctx, dst, "missing", filepath.Join(t.TempDir(), "x.dmap"))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestBackup_Retention(t *testing.T) {
	ctx := context.Background()
	dst := blobstore.NewMemoryStore()

	b := openMemory(t)
	fillUsers(t, b, 10)

	var last diskmap.Manifest
	for range 4 {
		var err error
		last, err = b.Backup(ctx, dst, "db", diskmap.WithBackupRetention(2))
		require.NoError(t, err)
	}

	names, err := dst.List(ctx, "db/")
	require.NoError(t, err)
	require.Len(t, names, 3)
	assert.Contains(t, names, "db/CURRENT")
	assert.Contains(t, names, last.Blob)
}

func TestBackup_ClosedBuilder(t *testing.T) {
	b, err := diskmap.OpenMemory()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = b.Backup(context.Background(), blobstore.NewMemoryStore(), "db")
	assert.ErrorIs(t, err, diskmap.ErrClosed)
}

func TestBackup_HonoursResourceOptions(t *testing.T) {
	const limit = 64 << 10

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "throttled.dmap")
	b, err := diskmap.Open(path, diskmap.WithIORateLimit(limit), diskmap.WithFlushWorkers(1))
	require.NoError(t, err)
	defer b.Close()

	fillUsers(t, b, 2_500)
	require.NoError(t, b.Commit())

	start := time.Now()
	m, err := b.Backup(ctx, blobstore.NewMemoryStore(), "db", diskmap.WithBackupCompression(diskmap.CompressionNone))
	require.NoError(t, err)
	elapsed := time.Since(start)

	// The limiter starts with one second of burst.
	require.Greater(t, m.Size, uint64(2*limit))
	want := time.Duration(float64(m.Size-limit) / limit * float64(time.Second))
	assert.GreaterOrEqual(t, elapsed, want*9/10)
}
