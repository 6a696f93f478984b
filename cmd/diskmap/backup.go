package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/blobstore"
	minioblob "github.com/hupe1980/diskmap/blobstore/minio"
	s3blob "github.com/hupe1980/diskmap/blobstore/s3"
	"github.com/hupe1980/diskmap/internal/compress"
)

func addTargetFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("target", "./backups", "backup target: a directory, minio://host:port/bucket/prefix or s3://bucket/prefix")
	f.String("name", "diskmap", "backup name; snapshots are stored under <name>/")
	f.Duration("timeout", time.Hour, "overall timeout")
	f.Int("io-limit", 0, "IO rate limit in bytes per second (0 disables)")
	f.String("minio-access-key", "", "MinIO access key")
	f.String("minio-secret-key", "", "MinIO secret key")
	f.Bool("minio-secure", true, "use TLS for MinIO")
	f.String("s3-region", "", "AWS region override")
	f.String("ddb-table", "", "DynamoDB table for atomic CURRENT commits (s3 targets only)")
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "commit the store and upload a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
			defer cancel()

			algo, err := compress.Parse(viper.GetString("compression"))
			if err != nil {
				return err
			}
			target, err := openTarget(ctx, viper.GetString("target"))
			if err != nil {
				return err
			}

			b, err := openFile(false, diskmap.WithIORateLimit(viper.GetInt("io-limit")))
			if err != nil {
				return err
			}
			defer b.Close()

			opts := []diskmap.BackupOption{diskmap.WithBackupCompression(algo)}
			if keep := viper.GetInt("keep"); keep > 0 {
				opts = append(opts, diskmap.WithBackupRetention(keep))
			}
			m, err := b.Backup(ctx, target, viper.GetString("name"), opts...)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d bytes, checksum %016x, %s\n", m.Blob, m.Size, m.Checksum, m.Compression)
			return nil
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().String("compression", "zstd", "snapshot compression (none, lz4, zstd)")
	cmd.Flags().Int("keep", 0, "number of snapshots to keep (0 keeps all)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "restore the latest snapshot into a new store file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
			defer cancel()

			path := viper.GetString("file")
			if path == "" {
				return fmt.Errorf("no store file given (--file or DISKMAP_FILE)")
			}
			target, err := openTarget(ctx, viper.GetString("target"))
			if err != nil {
				return err
			}
			opts, err := builderOptions(diskmap.WithIORateLimit(viper.GetInt("io-limit")))
			if err != nil {
				return err
			}

			b, err := diskmap.Restore(ctx, target, viper.GetString("name"), path, opts...)
			if err != nil {
				return err
			}
			defer b.Close()

			names, err := b.MapNames()
			if err != nil {
				return err
			}
			cmd.Printf("restored %s (%d bytes, %d named maps)\n", path, b.Stats().FileSize, len(names))
			return nil
		},
	}
	addTargetFlags(cmd)
	return cmd
}

// openTarget resolves a backup target URL to a blob store.
func openTarget(ctx context.Context, target string) (blobstore.BlobStore, error) {
	if !strings.Contains(target, "://") {
		return blobstore.NewLocalStore(target), nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target, err)
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")

	switch u.Scheme {
	case "file":
		return blobstore.NewLocalStore(u.Path), nil
	case "minio":
		if bucket == "" {
			return nil, fmt.Errorf("target %q names no bucket", target)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio-access-key"), viper.GetString("minio-secret-key"), ""),
			Secure: viper.GetBool("minio-secure"),
		})
		if err != nil {
			return nil, err
		}
		return minioblob.NewStore(client, bucket, prefix), nil
	case "s3":
		// s3://bucket/prefix keeps the bucket in the host.
		bucket, prefix = u.Host, strings.TrimPrefix(u.Path, "/")
		store, err := s3blob.New(ctx, bucket,
			s3blob.WithPrefix(prefix),
			s3blob.WithRegion(viper.GetString("s3-region")),
		)
		if err != nil {
			return nil, err
		}
		table := viper.GetString("ddb-table")
		if table == "" {
			return store, nil
		}
		var loadOpts []func(*config.LoadOptions) error
		if region := viper.GetString("s3-region"); region != "" {
			loadOpts = append(loadOpts, config.WithRegion(region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, err
		}
		return s3blob.NewDDBCommitStore(store, dynamodb.NewFromConfig(cfg), table, target), nil
	default:
		return nil, fmt.Errorf("unsupported target scheme %q", u.Scheme)
	}
}
