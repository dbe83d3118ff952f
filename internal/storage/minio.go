package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ImageStore on a MinIO (or S3-compatible) endpoint.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore connects to the object store and ensures the given
// buckets exist.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey string, useSSL bool, buckets ...string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	for _, bucket := range buckets {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return &MinioStore{client: client}, nil
}

// Upload stores an asset under the generated id.
func (s *MinioStore) Upload(ctx context.Context, bucket, id string, data io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, id, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, id, err)
	}
	return nil
}

// Delete removes an asset. Deleting an absent asset is not an error.
func (s *MinioStore) Delete(ctx context.Context, bucket, id string) error {
	if err := s.client.RemoveObject(ctx, bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, id, err)
	}
	return nil
}

// URL returns a presigned GET URL for the asset.
func (s *MinioStore) URL(ctx context.Context, bucket, id string) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, bucket, id, 15*time.Minute, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, id, err)
	}
	return signed.String(), nil
}
