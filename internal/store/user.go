package store

import (
	"context"
	"strings"

	"github.com/codegenie/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	*Collection[types.User]
}

func NewUserRepository(c *Collection[types.User]) *UserRepository {
	return &UserRepository{Collection: c}
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	return r.All(ctx)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	return r.find(ctx, func(users []types.User) int { return IndexByID(users, id) })
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.find(ctx, func(users []types.User) int { return IndexByUsername(users, username) })
}

// Resolve looks identifier up as a user id first, then as a username.
func (r *UserRepository) Resolve(ctx context.Context, identifier string) (types.User, error) {
	return r.find(ctx, func(users []types.User) int { return Resolve(users, identifier) })
}

func (r *UserRepository) find(ctx context.Context, index func([]types.User) int) (types.User, error) {
	var user types.User
	err := r.View(ctx, func(users []types.User) error {
		i := index(users)
		if i < 0 {
			return ErrNotFound
		}
		user = users[i]
		return nil
	})
	return user, err
}

// IndexByID returns the position of id in users, or -1.
func IndexByID(users []types.User, id string) int {
	for i := range users {
		if users[i].UserID == id {
			return i
		}
	}
	return -1
}

// IndexByUsername matches case-insensitively after trimming; the first
// match in collection order wins.
func IndexByUsername(users []types.User, username string) int {
	want := strings.ToLower(strings.TrimSpace(username))
	if want == "" {
		return -1
	}
	for i := range users {
		if strings.ToLower(strings.TrimSpace(users[i].Username)) == want {
			return i
		}
	}
	return -1
}

// Resolve returns the index of the user whose id equals identifier, or
// failing that whose username matches it, or -1.
func Resolve(users []types.User, identifier string) int {
	if i := IndexByID(users, identifier); i >= 0 {
		return i
	}
	return IndexByUsername(users, identifier)
}

// CountAdmins returns how many users hold the admin role.
func CountAdmins(users []types.User) int {
	n := 0
	for i := range users {
		if users[i].IsAdmin() {
			n++
		}
	}
	return n
}
