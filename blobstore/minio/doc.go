// Package minio provides a blobstore.BlobStore on the MinIO client, for
// MinIO and other S3-compatible servers such as Ceph, SeaweedFS and Garage.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "backups/")
//	err = b.Backup(ctx, store, "users")
//
// Snapshots are streamed with an unknown size, which the client turns into
// a multipart upload.
package minio
