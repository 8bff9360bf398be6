package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient keeps objects in an S3-compatible bucket.
type MinioClient struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return nil, errors.New("minio endpoint is required")
	case strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "":
		return nil, errors.New("minio access key and secret key are required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioClient{client: client, bucket: cfg.Bucket}, nil
}

// minioError maps SDK errors onto storage and apperr kinds.
func minioError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return apperr.Wrap(apperr.ErrUpstream, "minio "+op+" "+key, err)
}

func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return minioError("stat bucket", m.bucket, err)
	}
	if exists {
		return nil
	}
	return minioError("make bucket", m.bucket, m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}))
}

func (m *MinioClient) Put(ctx context.Context, key string, r io.Reader, size int64, obj Object) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		CacheControl: obj.CacheControl,
		UserMetadata: obj.metadata(),
	})
	return minioError("put", key, err)
}

// Get opens the object. GetObject is lazy, so Stat forces the request and
// reports a missing key before the caller starts streaming.
func (m *MinioClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError("get", key, err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, minioError("get", key, err)
	}
	return object, nil
}

// Copy runs server-side and replaces the metadata with obj's.
func (m *MinioClient) Copy(ctx context.Context, src, dst string, obj Object) error {
	meta := obj.metadata()
	if meta == nil {
		meta = make(map[string]string, 2)
	}
	if obj.ContentType != "" {
		meta["Content-Type"] = obj.ContentType
	}
	if obj.CacheControl != "" {
		meta["Cache-Control"] = obj.CacheControl
	}
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: dst, UserMetadata: meta, ReplaceMetadata: true},
		minio.CopySrcOptions{Bucket: m.bucket, Object: src},
	)
	return minioError("copy", src, err)
}

// Delete is idempotent: S3 reports success for a missing key.
func (m *MinioClient) Delete(ctx context.Context, key string) error {
	return minioError("delete", key, m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}))
}

func (m *MinioClient) Bucket() string {
	return m.bucket
}

// Close is a no-op; the SDK client holds no connections of its own.
func (m *MinioClient) Close() error {
	return nil
}
