package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/codegenie/apiserver/internal/db"
	"github.com/codegenie/apiserver/internal/lock"
	"github.com/codegenie/apiserver/internal/logging"
)

const jsonIndent = "    "

// Collection is a JSON array of T persisted as one document. Every
// operation runs under the collection lock, so a read-modify-write cycle is
// never interleaved with another writer.
type Collection[T any] struct {
	name    string
	backend db.Backend
	locker  lock.Locker
	log     logging.Logger
}

func NewCollection[T any](name string, backend db.Backend, locker lock.Locker, log logging.Logger) *Collection[T] {
	return &Collection[T]{
		name:    name,
		backend: backend,
		locker:  locker,
		log:     log.With("collection", name),
	}
}

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) withLock(ctx context.Context, fn func() error) error {
	unlock, err := c.locker.Lock(ctx, c.name)
	if err != nil {
		return apperr.Wrap(apperr.ErrIO, "lock "+c.name, err)
	}
	defer unlock()
	return fn()
}

// Init creates the collection when it does not exist yet.
func (c *Collection[T]) Init(ctx context.Context) (bool, error) {
	var created bool
	err := c.withLock(ctx, func() error {
		var err error
		created, err = c.backend.Init(ctx, c.name)
		return err
	})
	if created {
		c.log.Info(ctx, "collection initialized")
	}
	return created, err
}

// All returns a snapshot of every record.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	err := c.View(ctx, func(all []T) error {
		items = all
		return nil
	})
	return items, err
}

// View loads the records and hands them to fn. The slice is a fresh copy.
func (c *Collection[T]) View(ctx context.Context, fn func([]T) error) error {
	return c.withLock(ctx, func() error {
		items, err := c.load(ctx)
		if err != nil {
			return err
		}
		return fn(items)
	})
}

// Update loads the records, lets fn mutate them and writes the result
// back. Nothing is written when fn fails.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	return c.withLock(ctx, func() error {
		items, err := c.load(ctx)
		if err != nil {
			return err
		}
		items, err = fn(items)
		if err != nil {
			return err
		}
		return c.save(ctx, items)
	})
}

// Append adds records at the end of the collection.
func (c *Collection[T]) Append(ctx context.Context, records ...T) error {
	return c.Update(ctx, func(items []T) ([]T, error) {
		return append(items, records...), nil
	})
}

// Count reports how many records decode cleanly.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	items, err := c.All(ctx)
	return len(items), err
}

// Repair replaces a corrupted payload with an empty array after copying
// the raw bytes to backup. It reports whether anything was replaced.
func (c *Collection[T]) Repair(ctx context.Context, backup io.Writer) (bool, error) {
	var repaired bool
	err := c.withLock(ctx, func() error {
		raw, err := c.backend.Read(ctx, c.name)
		if err != nil {
			if errors.Is(err, db.ErrUninitialized) {
				_, err = c.backend.Init(ctx, c.name)
				repaired = err == nil
			}
			return err
		}
		if _, err := decode[T](raw); err == nil {
			return nil
		}
		if backup != nil {
			if _, err := backup.Write(raw); err != nil {
				return apperr.Wrap(apperr.ErrIO, "backup "+c.name, err)
			}
		}
		if err := c.save(ctx, nil); err != nil {
			return err
		}
		repaired = true
		c.log.Warn(ctx, "collection repaired", "discarded_bytes", len(raw))
		return nil
	})
	return repaired, err
}

func (c *Collection[T]) load(ctx context.Context) ([]T, error) {
	raw, err := c.backend.Read(ctx, c.name)
	if err != nil {
		return nil, err
	}
	items, err := decode[T](raw)
	if err != nil {
		c.log.Error(ctx, "collection is not a JSON array; refusing to overwrite it", "error", err)
		return nil, &CorruptedError{Collection: c.name, Err: err}
	}
	return items, nil
}

func (c *Collection[T]) save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", jsonIndent)
	if err != nil {
		return apperr.Wrap(apperr.ErrIO, "encode "+c.name, err)
	}
	if err := c.backend.Write(ctx, c.name, data); err != nil {
		return err
	}
	c.log.Debug(ctx, "collection written", "records", len(items), "bytes", len(data))
	return nil
}

func decode[T any](raw []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("payload does not start with '['")
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
