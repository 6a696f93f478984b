package diskmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/diskmap/blobstore"
	"github.com/hupe1980/diskmap/internal/compress"
	"github.com/hupe1980/diskmap/internal/resource"
)

const (
	backupChunkSize = 1 << 20
	manifestName    = "CURRENT"
	snapshotSuffix  = ".dmap"
)

// Manifest describes the snapshot a backup's CURRENT blob points at.
type Manifest struct {
	Blob        string    `json:"blob"`
	Size        uint64    `json:"size"`
	Checksum    uint64    `json:"checksum"`
	Compression string    `json:"compression"`
	Created     time.Time `json:"created"`
}

type backupOptions struct {
	compression Compression
	keep        int
}

// BackupOption configures Backup.
type BackupOption func(*backupOptions)

// WithBackupCompression sets the snapshot compression. Default is zstd.
func WithBackupCompression(c Compression) BackupOption {
	return func(o *backupOptions) { o.compression = c }
}

// WithBackupRetention deletes all but the newest n snapshots after a
// successful backup. n <= 0 keeps everything.
func WithBackupRetention(n int) BackupOption {
	return func(o *backupOptions) { o.keep = n }
}

// Backup commits the store and streams a snapshot of it to dst under
// name/<timestamp>.dmap, then points name/CURRENT at it. Locking map
// handles are blocked for the duration of the copy; handles opened with
// locking disabled must not be written concurrently.
func (b *Builder) Backup(ctx context.Context, dst blobstore.BlobStore, name string, optFns ...BackupOption) (m Manifest, err error) {
	o := backupOptions{compression: CompressionZstd}
	for _, fn := range optFns {
		fn(&o)
	}
	defer func() { b.logger.LogBackup(ctx, "backup", name, int64(m.Size), err) }()

	if err = b.checkOpen(); err != nil {
		return m, err
	}

	unlock := b.quiesce()
	defer unlock()

	if err = b.Commit(); err != nil {
		return m, err
	}

	m = Manifest{
		Blob:        path.Join(name, time.Now().UTC().Format("20060102T150405.000000000Z")+snapshotSuffix),
		Size:        b.st.Size(),
		Compression: compress.Name(o.compression),
		Created:     time.Now().UTC(),
	}
	if m.Checksum, err = b.writeSnapshot(ctx, dst, m.Blob, m.Size, o.compression); err != nil {
		return m, err
	}

	data, err := gojson.Marshal(m)
	if err != nil {
		return m, err
	}
	if err = dst.Put(ctx, path.Join(name, manifestName), data); err != nil {
		return m, fmt.Errorf("diskmap: publish manifest: %w", err)
	}

	if o.keep > 0 {
		err = prune(ctx, dst, name, o.keep)
	}
	return m, err
}

// quiesce takes the creation lock and the structural lock of every open
// index, excluding all locking operations.
func (b *Builder) quiesce() func() {
	b.createMu.Lock()
	var held []*index
	b.indexes.Range(func(_ uint64, ix *index) bool {
		ix.mu.Lock()
		held = append(held, ix)
		return true
	})
	return func() {
		for _, ix := range held {
			ix.mu.Unlock()
		}
		b.createMu.Unlock()
	}
}

func (b *Builder) writeSnapshot(ctx context.Context, dst blobstore.BlobStore, blob string, size uint64, algo Compression) (uint64, error) {
	w, err := dst.Create(ctx, blob)
	if err != nil {
		return 0, err
	}
	zw, err := compress.NewWriter(resource.NewRateLimitedWriter(ctx, w, b.rc), algo)
	if err != nil {
		_ = blobstore.Abort(w)
		return 0, err
	}

	h := xxhash.New()
	for pos := uint64(0); pos < size; {
		if err := ctx.Err(); err != nil {
			_ = blobstore.Abort(w)
			return 0, err
		}
		n := min(uint64(backupChunkSize), size-pos)
		chunk, err := b.st.Read(pos, int(n))
		if err == nil && chunk == nil {
			err = fmt.Errorf("diskmap: snapshot read at %d beyond end of store", pos)
		}
		if err == nil {
			_, _ = h.Write(chunk)
			_, err = zw.Write(chunk)
		}
		if err != nil {
			_ = blobstore.Abort(w)
			return 0, translateError(err)
		}
		pos += n
	}

	if err := zw.Close(); err != nil {
		_ = blobstore.Abort(w)
		return 0, err
	}
	if err := w.Sync(); err != nil {
		_ = blobstore.Abort(w)
		return 0, err
	}
	return h.Sum64(), w.Close()
}

func prune(ctx context.Context, dst blobstore.BlobStore, name string, keep int) error {
	names, err := dst.List(ctx, name+"/")
	if err != nil {
		return err
	}
	var snapshots []string
	for _, n := range names {
		if strings.HasSuffix(n, snapshotSuffix) && path.Dir(n) == name {
			snapshots = append(snapshots, n)
		}
	}
	// Timestamped names sort chronologically.
	var errs []error
	for len(snapshots) > keep {
		errs = append(errs, dst.Delete(ctx, snapshots[0]))
		snapshots = snapshots[1:]
	}
	return errors.Join(errs...)
}

// ReadManifest returns the manifest of the latest backup under name.
func ReadManifest(ctx context.Context, src blobstore.BlobStore, name string) (Manifest, error) {
	var m Manifest
	data, err := blobstore.ReadAll(ctx, src, path.Join(name, manifestName))
	if err != nil {
		return m, err
	}
	if err := gojson.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: manifest: %v", ErrCorruptBackup, err)
	}
	return m, nil
}

// Restore writes the latest backup under name to a new store file at dst
// and opens it. dst must not exist.
func Restore(ctx context.Context, src blobstore.BlobStore, name, dst string, optFns ...Option) (*Builder, error) {
	o := applyOptions(optFns)
	logger := o.logger.WithPath(dst)

	n, err := restore(ctx, src, name, dst, newController(o))
	logger.LogBackup(ctx, "restore", name, n, err)
	if err != nil {
		return nil, err
	}
	return Open(dst, optFns...)
}

func restore(ctx context.Context, src blobstore.BlobStore, name, dst string, rc *resource.Controller) (int64, error) {
	if _, err := os.Stat(dst); err == nil {
		return 0, fmt.Errorf("diskmap: restore target %s exists", dst)
	}

	m, err := ReadManifest(ctx, src, name)
	if err != nil {
		return 0, err
	}
	algo, err := compress.Parse(m.Compression)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptBackup, err)
	}

	blob, err := src.Open(ctx, m.Blob)
	if err != nil {
		return 0, err
	}
	defer blob.Close()

	rr, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return 0, err
	}
	defer rr.Close()

	zr, err := compress.NewReader(resource.NewRateLimitedReader(ctx, rr, rc), algo)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), zr)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}

	if uint64(n) != m.Size || h.Sum64() != m.Checksum {
		return n, fmt.Errorf("%w: %s: got %d bytes with checksum %x, want %d bytes with checksum %x",
			ErrCorruptBackup, m.Blob, n, h.Sum64(), m.Size, m.Checksum)
	}
	return n, os.Rename(tmp.Name(), dst)
}
