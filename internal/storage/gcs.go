package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/apperr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// singleRequestLimit is the largest upload sent without resumable chunking.
// Avatars stay well below it.
const singleRequestLimit = 8 << 20

// GCSClient keeps objects in a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	name      string
	projectID string
}

func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	return &GCSClient{
		client:    client,
		bucket:    client.Bucket(cfg.Bucket),
		name:      cfg.Bucket,
		projectID: cfg.ProjectID,
	}, nil
}

func gcsError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.Is(err, storage.ErrObjectNotExist) || (errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound) {
		return fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return apperr.Wrap(apperr.ErrUpstream, "gcs "+op+" "+key, err)
}

// EnsureBucket creates the bucket when it is missing, which needs a
// project id.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return gcsError("stat bucket", g.name, err)
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return gcsError("create bucket", g.name, g.bucket.Create(ctx, g.projectID, nil))
}

func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, size int64, obj Object) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = obj.CacheControl
	w.Metadata = obj.metadata()
	if size >= 0 && size <= singleRequestLimit {
		w.ChunkSize = 0
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return gcsError("put", key, err)
	}
	return gcsError("put", key, w.Close())
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, gcsError("get", key, err)
	}
	return r, nil
}

// Copy rewrites src into dst inside the bucket with obj's attributes.
func (g *GCSClient) Copy(ctx context.Context, src, dst string, obj Object) error {
	copier := g.bucket.Object(dst).CopierFrom(g.bucket.Object(src))
	copier.ContentType = obj.ContentType
	copier.CacheControl = obj.CacheControl
	copier.Metadata = obj.metadata()
	_, err := copier.Run(ctx)
	return gcsError("copy", src, err)
}

func (g *GCSClient) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return gcsError("delete", key, err)
}

func (g *GCSClient) Bucket() string {
	return g.name
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
