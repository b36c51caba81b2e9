package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of the S3 client used, so tests can inject a fake.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store is the object-storage back-end. It checks existence before
// Put to avoid redundant uploads, but tolerates a lost race: a concurrent
// put of identical content is a no-op because the key is the hash.
type S3Store struct {
	client s3API
	bucket string
	prefix string
	index  *Index
}

// NewS3Store wraps an S3 client scoped to bucket/prefix.
func NewS3Store(client s3API, bucket, prefix string, index *Index) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, index: index}
}

func (s *S3Store) objectKey(hash string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, Shard(hash), hash)
}

func (s *S3Store) Put(ctx context.Context, data []byte, kind Kind) (Coordinates, error) {
	hash := Hash(data)
	uri := fmt.Sprintf("s3://%s/%s", s.bucket, s.objectKey(hash))

	if existing, ok := s.index.Lookup(hash); ok {
		return existing, nil
	}

	exists, err := s.headExists(ctx, hash)
	if err != nil {
		return Coordinates{}, fmt.Errorf("check existing object: %w", err)
	}
	if exists {
		coords := Touch(Coordinates{Hash: hash, Kind: kind, URI: uri, Size: int64(len(data))})
		_ = s.index.Record(coords)
		return coords, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(hash)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return Coordinates{}, fmt.Errorf("upload object: %w", err)
	}

	coords := Coordinates{Hash: hash, Kind: kind, URI: uri, Size: int64(len(data)), CreatedAt: time.Now().UTC()}
	if err := s.index.Record(coords); err != nil {
		return Coordinates{}, fmt.Errorf("record index: %w", err)
	}
	return coords, nil
}

func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(hash)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	if _, ok := s.index.Lookup(hash); ok {
		return true, nil
	}
	return s.headExists(ctx, hash)
}

func (s *S3Store) headExists(ctx context.Context, hash string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(hash)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}
