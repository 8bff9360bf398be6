package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"

	"github.com/codegenie/apiserver/internal/storage"
)

const (
	avatarContentType  = "image/png"
	avatarCacheControl = "private, max-age=300"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// AvatarStore is the object storage avatars are kept in.
type AvatarStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, obj storage.Object) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Copy(ctx context.Context, src, dst string, obj storage.Object) error
	Delete(ctx context.Context, key string) error
}

// AvatarService keeps one PNG per user.
type AvatarService struct {
	store    AvatarStore
	maxBytes int64
}

func NewAvatarService(store AvatarStore, maxBytes int64) *AvatarService {
	return &AvatarService{store: store, maxBytes: maxBytes}
}

// MaxBytes is the largest accepted upload.
func (s *AvatarService) MaxBytes() int64 { return s.maxBytes }

// AvatarKey returns the object key for userID's avatar.
func AvatarKey(userID string) string {
	return "avatars/" + url.PathEscape(userID) + ".png"
}

// Upload replaces the user's avatar.
func (s *AvatarService) Upload(ctx context.Context, userID string, data []byte) error {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return ErrAvatarTooLarge
	}
	if !bytes.HasPrefix(data, pngSignature) {
		return ErrInvalidAvatar
	}
	return s.store.Put(ctx, AvatarKey(userID), bytes.NewReader(data), int64(len(data)), avatarObject(userID))
}

func avatarObject(userID string) storage.Object {
	return storage.Object{ContentType: avatarContentType, CacheControl: avatarCacheControl, Owner: userID}
}

// Open returns the stored PNG. The caller closes it.
func (s *AvatarService) Open(ctx context.Context, userID string) (io.ReadCloser, error) {
	r, err := s.store.Get(ctx, AvatarKey(userID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrAvatarNotFound
	}
	return r, err
}

func (s *AvatarService) Delete(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, AvatarKey(userID))
}

// Move renames the avatar after a user id change. A user without an
// avatar is left alone.
func (s *AvatarService) Move(ctx context.Context, from, to string) error {
	err := s.store.Copy(ctx, AvatarKey(from), AvatarKey(to), avatarObject(to))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, AvatarKey(from))
}
