package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/diskmap/blobstore"
)

// snapshotContentType tags every object diskmap writes, so backups are
// recognisable in a shared bucket.
const snapshotContentType = "application/x-diskmap"

var errUploadAborted = errors.New("diskmap/minio: snapshot upload aborted")

// keyspace maps blob names to object keys under an optional root.
type keyspace struct {
	root string // without trailing slash
}

func newKeyspace(root string) keyspace {
	return keyspace{root: strings.Trim(root, "/")}
}

func (k keyspace) object(name string) string {
	if k.root == "" {
		return name
	}
	return k.root + "/" + name
}

// blob is the inverse of object. ok is false for keys outside the root.
func (k keyspace) blob(key string) (string, bool) {
	if k.root == "" {
		return key, key != ""
	}
	name, ok := strings.CutPrefix(key, k.root+"/")
	return name, ok && name != ""
}

// Store keeps diskmap backups in a MinIO or S3-compatible bucket. Each
// backup set is a list of snapshot objects plus a CURRENT manifest that is
// written last.
type Store struct {
	client *minio.Client
	bucket string
	keys   keyspace
}

// NewStore returns a Store writing below root in bucket, e.g.
// NewStore(client, "backups", "prod/diskmap").
func NewStore(client *minio.Client, bucket, root string) *Store {
	return &Store{client: client, bucket: bucket, keys: newKeyspace(root)}
}

func missing(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

// Open stats the snapshot object and returns a handle that reads it with
// ranged GETs.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.keys.object(name)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if missing(err) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot{store: s, key: key, size: info.Size}, nil
}

// Put uploads a small object such as a manifest in one request. The
// object is replaced as a whole, so readers see either version.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.keys.object(name),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: snapshotContentType})
	return err
}

// Create starts a streaming upload of unknown size. Nothing is visible in
// the bucket until Close returns nil; Abort discards the parts.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()
	u := &upload{pw: pw, result: make(chan error, 1)}

	go func(key string) {
		_, err := s.client.PutObject(ctx, s.bucket, key, pr, -1,
			minio.PutObjectOptions{ContentType: snapshotContentType})
		_ = pr.CloseWithError(err)
		u.result <- err
	}(s.keys.object(name))

	return u, nil
}

// Delete removes a snapshot. Deleting a missing object succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.keys.object(name), minio.RemoveObjectOptions{})
	if err == nil || missing(err) {
		return nil
	}
	return err
}

// List returns the sorted names below prefix, relative to the root.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	opts := minio.ListObjectsOptions{Prefix: s.keys.object(prefix), Recursive: true}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if name, ok := s.keys.blob(obj.Key); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// snapshot reads an object lazily. It holds no connection between reads.
type snapshot struct {
	store *Store
	key   string
	size  int64
}

func (b *snapshot) Size() int64 { return b.size }

func (b *snapshot) Close() error { return nil }

// window opens [off, off+length) clipped to the object. It returns the
// clipped length.
func (b *snapshot) window(ctx context.Context, off, length int64) (*minio.Object, int64, error) {
	if off < 0 || off >= b.size {
		return nil, 0, io.EOF
	}
	last := min(off+length, b.size) - 1

	var opts minio.GetObjectOptions
	if err := opts.SetRange(off, last); err != nil {
		return nil, 0, err
	}
	obj, err := b.store.client.GetObject(ctx, b.store.bucket, b.key, opts)
	if err != nil {
		return nil, 0, err
	}
	return obj, last - off + 1, nil
}

func (b *snapshot) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	obj, n, err := b.window(ctx, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	got, err := io.ReadFull(obj, p[:n])
	if err != nil {
		return got, err
	}
	if got < len(p) {
		return got, io.EOF
	}
	return got, nil
}

func (b *snapshot) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	obj, _, err := b.window(ctx, off, length)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// upload feeds a PutObject call running in its own goroutine.
type upload struct {
	pw     *io.PipeWriter
	result chan error
	done   atomic.Bool
}

func (u *upload) Write(p []byte) (int, error) { return u.pw.Write(p) }

// Sync is a no-op; durability comes with the completed upload.
func (u *upload) Sync() error { return nil }

func (u *upload) Close() error {
	if !u.done.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	if err := u.pw.Close(); err != nil {
		return err
	}
	return <-u.result
}

func (u *upload) Abort() error {
	if !u.done.CompareAndSwap(false, true) {
		return nil
	}
	_ = u.pw.CloseWithError(errUploadAborted)
	<-u.result
	return nil
}
