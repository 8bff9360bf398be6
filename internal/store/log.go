package store

import "context"

// Owned is a record that belongs to a user and can be handed to another.
type Owned[T any] interface {
	Owner() string
	Reassigned(to string) T
}

// Log is an append-only collection of user-owned records.
type Log[T Owned[T]] struct {
	*Collection[T]
}

func NewLog[T Owned[T]](c *Collection[T]) *Log[T] {
	return &Log[T]{Collection: c}
}

// List returns the records of owner in insertion order. An empty owner
// returns everything.
func (l *Log[T]) List(ctx context.Context, owner string) ([]T, error) {
	all, err := l.All(ctx)
	if err != nil || owner == "" {
		return all, err
	}
	out := make([]T, 0)
	for _, rec := range all {
		if rec.Owner() == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Reassign moves every record of from to to and returns how many moved.
func (l *Log[T]) Reassign(ctx context.Context, from, to string) (int, error) {
	var moved int
	err := l.Update(ctx, func(items []T) ([]T, error) {
		for i, rec := range items {
			if rec.Owner() == from {
				items[i] = rec.Reassigned(to)
				moved++
			}
		}
		return items, nil
	})
	return moved, err
}
