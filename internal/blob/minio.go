// Package blob publishes export artifacts to S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// ErrUpload marks failures writing the artifact bytes.
	ErrUpload = errors.New("artifact upload failed")
	// ErrSign marks failures producing the signed retrieval URL after a
	// successful upload.
	ErrSign = errors.New("artifact url signing failed")
)

type Store struct {
	client    *minio.Client
	bucket    string
	signedTTL time.Duration
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	SignedTTL time.Duration
}

func New(opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	ttl := opts.SignedTTL
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &Store{client: client, bucket: opts.Bucket, signedTTL: ttl}, nil
}

// EnsureBucket creates the artifact bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Publish uploads the content at the given path (overwriting any previous
// object) and returns a presigned retrieval URL. Upload and signing failures
// wrap distinct sentinel errors so callers can tell "couldn't write" from
// "wrote but couldn't produce a link".
func (s *Store) Publish(ctx context.Context, path string, content []byte, contentType string) (string, error) {
	reader := bytes.NewReader(content)
	_, err := s.client.PutObject(ctx, s.bucket, path, reader, int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUpload, path, err)
	}

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, path, s.signedTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSign, path, err)
	}
	return signed.String(), nil
}
