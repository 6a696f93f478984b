// Package s3 provides Amazon S3 implementations of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("backups/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	err = b.Backup(ctx, store, "users")
//
// Snapshots are uploaded through the multipart upload manager; manifests
// use a single PutObject. S3 gives no compare-and-swap, so concurrent
// backups of the same map should use DDBCommitStore, which keeps every
// CURRENT manifest in a DynamoDB table with conditional writes.
package s3
