// Package storage keeps binary assets such as avatars in an object store.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/apperr"
)

// ErrObjectNotFound is returned when a key does not exist.
var ErrObjectNotFound = apperr.New(apperr.ErrNotFound, "object not found")

// MetaOwner is the user-metadata key holding the id of the user an object
// belongs to.
const MetaOwner = "owner"

// Object describes how an upload is stored and later served.
type Object struct {
	ContentType  string
	CacheControl string
	// Owner is recorded as user metadata where the backend supports it.
	Owner string
}

func (o Object) metadata() map[string]string {
	if o.Owner == "" {
		return nil
	}
	return map[string]string{MetaOwner: o.Owner}
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, obj Object) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Copy duplicates src to dst inside the bucket, replacing its metadata
	// with obj. A missing src is ErrObjectNotFound.
	Copy(ctx context.Context, src, dst string, obj Object) error
	Delete(ctx context.Context, key string) error
	Bucket() string
	Close() error
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend selected by cfg.Avatar.Backend and makes sure
// its bucket exists.
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Avatar.Backend {
	case "", "local":
		backend, err = NewLocalClient(cfg.Avatar.Dir)
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown avatar backend %q", cfg.Avatar.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend), nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, obj Object) error {
	return s.backend.Put(ctx, key, r, size, obj)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Copy duplicates an object without streaming it through the server.
func (s *Storage) Copy(ctx context.Context, src, dst string, obj Object) error {
	return s.backend.Copy(ctx, src, dst, obj)
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Close releases the backend's client.
func (s *Storage) Close() error {
	return s.backend.Close()
}
