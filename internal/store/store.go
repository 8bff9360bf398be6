package store

import (
	"context"
	"fmt"
	"io"

	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/codegenie/apiserver/internal/db"
	"github.com/codegenie/apiserver/internal/lock"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/types"
)

type maintained interface {
	Name() string
	Init(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
	Repair(ctx context.Context, backup io.Writer) (bool, error)
}

// Stores bundles every collection over one backend and locker.
type Stores struct {
	Users    *UserRepository
	Activity *Log[types.Activity]
	History  *Log[types.HistoryEntry]
	Feedback *Log[types.Feedback]

	byName map[string]maintained
}

func New(backend db.Backend, locker lock.Locker, log logging.Logger) *Stores {
	s := &Stores{
		Users:    NewUserRepository(NewCollection[types.User](db.Users, backend, locker, log)),
		Activity: NewLog(NewCollection[types.Activity](db.Activity, backend, locker, log)),
		History:  NewLog(NewCollection[types.HistoryEntry](db.History, backend, locker, log)),
		Feedback: NewLog(NewCollection[types.Feedback](db.Feedback, backend, locker, log)),
	}
	s.byName = map[string]maintained{
		db.Users:    s.Users,
		db.Activity: s.Activity,
		db.History:  s.History,
		db.Feedback: s.Feedback,
	}
	return s
}

// InitAll creates every missing collection and returns the names created.
func (s *Stores) InitAll(ctx context.Context) ([]string, error) {
	var created []string
	for _, name := range db.Collections {
		ok, err := s.byName[name].Init(ctx)
		if err != nil {
			return created, fmt.Errorf("init %s: %w", name, err)
		}
		if ok {
			created = append(created, name)
		}
	}
	return created, nil
}

// Check decodes a collection and returns its record count.
func (s *Stores) Check(ctx context.Context, name string) (int, error) {
	c, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	return c.Count(ctx)
}

// Repair resets a corrupted collection, copying the old payload to backup.
func (s *Stores) Repair(ctx context.Context, name string, backup io.Writer) (bool, error) {
	c, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	return c.Repair(ctx, backup)
}

func (s *Stores) lookup(name string) (maintained, error) {
	c, ok := s.byName[name]
	if !ok {
		return nil, apperr.New(apperr.ErrInvalidInput, fmt.Sprintf("unknown collection %q", name))
	}
	return c, nil
}
