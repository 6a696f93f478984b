package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/diskmap/blobstore"
)

// CurrentName is the base name of manifest blobs routed through DynamoDB.
const CurrentName = "CURRENT"

// DDBCommitStore implements blobstore.BlobStore backed by S3 with DynamoDB
// for atomic manifest commits. Blobs whose base name is CURRENT are never
// written to S3: every Put appends a new version to a DynamoDB item
// collection with a conditional write, and Open reads the latest version.
// Two writers racing on the same CURRENT cannot both win.
//
// Table schema:
//   - Partition key: base_uri (string), the base URI plus the blob's directory
//   - Sort key: version (number), monotonically increasing
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name diskmap-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	s3Store   *Store
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when a concurrent write is detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCommitStore creates a new S3+DynamoDB commit store.
// The baseURI should be "s3://bucket/prefix"; it namespaces the partition keys.
func NewDDBCommitStore(s3Store *Store, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// partition returns the DynamoDB partition key of a CURRENT blob, or false
// for blobs stored in S3.
func (s *DDBCommitStore) partition(name string) (string, bool) {
	if path.Base(name) != CurrentName {
		return "", false
	}
	dir := path.Dir(name)
	if dir == "." {
		return s.baseURI, true
	}
	return s.baseURI + "/" + dir, true
}

// Open opens a blob for reading.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	pk, ok := s.partition(name)
	if !ok {
		return s.s3Store.Open(ctx, name)
	}
	version, content, err := s.latest(ctx, pk)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return &currentBlob{content: content}, nil
}

// Put writes a blob. CURRENT blobs are committed with a conditional write
// and fail with ErrConcurrentModification when another writer got there first.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if pk, ok := s.partition(name); ok {
		return s.commit(ctx, pk, data)
	}
	return s.s3Store.Put(ctx, name, data)
}

// Create creates a writable blob in S3.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if _, ok := s.partition(name); ok {
		return nil, fmt.Errorf("s3: %s must be written with Put", name)
	}
	return s.s3Store.Create(ctx, name)
}

// Delete deletes a blob. Deleting CURRENT removes its latest version, which
// rolls the pointer back to the previous commit.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	pk, ok := s.partition(name)
	if !ok {
		return s.s3Store.Delete(ctx, name)
	}
	version, _, err := s.latest(ctx, pk)
	if err != nil || version == 0 {
		return err
	}
	_, err = s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(pk, version),
	})
	return err
}

// List lists the S3 blobs with prefix. CURRENT manifests are not listed.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.s3Store.List(ctx, prefix)
}

func itemKey(pk string, version uint64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"base_uri": &types.AttributeValueMemberS{Value: pk},
		"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
	}
}

// latest queries the newest committed version of a partition.
func (s *DDBCommitStore) latest(ctx context.Context, pk string) (uint64, []byte, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, nil, nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil, errors.New("invalid version attribute in DynamoDB")
	}
	contentAttr, ok := item["content"].(*types.AttributeValueMemberB)
	if !ok {
		return 0, nil, errors.New("invalid content attribute in DynamoDB")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse version: %w", err)
	}
	return version, contentAttr.Value, nil
}

// commit appends version latest+1 unless another writer already did.
func (s *DDBCommitStore) commit(ctx context.Context, pk string, content []byte) error {
	current, _, err := s.latest(ctx, pk)
	if err != nil {
		return err
	}

	item := itemKey(pk, current+1)
	item["content"] = &types.AttributeValueMemberB{Value: bytes.Clone(content)}

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}
	return nil
}

type currentBlob struct {
	content []byte
}

func (b *currentBlob) Close() error {
	return nil
}

func (b *currentBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *currentBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *currentBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return nil, io.EOF
	}
	end := min(off+length, int64(len(b.content)))
	return io.NopCloser(bytes.NewReader(b.content[off:end])), nil
}
