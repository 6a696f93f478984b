// Package blobstore provides the storage abstraction used for diskmap
// backups.
//
// A backup is a snapshot blob plus a small manifest blob named CURRENT that
// points at it. Backends only need to provide atomic Put for the manifest and
// streaming Create for the snapshot.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local filesystem
//   - MemoryStore: an in-process map, for tests
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with multipart uploads
//   - s3.DDBCommitStore: S3 with DynamoDB conditional writes for CURRENT
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
