package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/codegenie/apiserver/internal/apperr"
)

var fileNames = map[string]string{
	Users:    "users.json",
	Activity: "user_activity.json",
	History:  "user_history.json",
	Feedback: "feedback_log.json",
}

// FileBackend keeps each collection in its own JSON file under a directory.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrIO, "create data dir", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Path returns the file backing a collection.
func (b *FileBackend) Path(name string) string {
	return filepath.Join(b.dir, fileNames[name])
}

func (b *FileBackend) Init(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(b.Path(name))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, apperr.Wrap(apperr.ErrIO, "stat "+name, err)
	}
	if err := b.Write(ctx, name, emptyCollection); err != nil {
		return false, err
	}
	return true, nil
}

func (b *FileBackend) Read(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrUninitialized)
		}
		return nil, apperr.Wrap(apperr.ErrIO, "read "+name, err)
	}
	return data, nil
}

// Write replaces the collection through a temp file and rename so readers
// never observe a half-written array.
func (b *FileBackend) Write(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	target := b.Path(name)

	tmp, err := os.CreateTemp(b.dir, "."+fileNames[name]+".*")
	if err != nil {
		return apperr.Wrap(apperr.ErrIO, "write "+name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.ErrIO, "write "+name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.ErrIO, "sync "+name, err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.ErrIO, "write "+name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return apperr.Wrap(apperr.ErrIO, "write "+name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return apperr.Wrap(apperr.ErrIO, "replace "+name, err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
