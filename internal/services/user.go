package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codegenie/apiserver/internal/auth"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/store"
	"github.com/codegenie/apiserver/types"
)

// MaxAdmins caps how many users may hold the admin role at once.
const MaxAdmins = 2

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context) ([]types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Resolve(ctx context.Context, identifier string) (types.User, error)
	Update(ctx context.Context, fn func([]types.User) ([]types.User, error)) error
}

// RecordLog is an append-only, per-user log.
type RecordLog[T any] interface {
	Append(ctx context.Context, records ...T) error
	List(ctx context.Context, owner string) ([]T, error)
	Reassign(ctx context.Context, from, to string) (int, error)
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	UserID           string
	Username         string
	Email            string
	SecurityQuestion string
	SecurityAnswer   string
}

// ReplaceInput describes moving a user to a new identity.
type ReplaceInput struct {
	OldID       string
	NewID       string
	NewUsername string
	NewEmail    string
}

// UserService encapsulates user use-cases.
type UserService struct {
	users    UserRepository
	activity RecordLog[types.Activity]
	history  RecordLog[types.HistoryEntry]
	feedback RecordLog[types.Feedback]
	log      logging.Logger
	now      func() time.Time
}

func NewUserService(
	users UserRepository,
	activity RecordLog[types.Activity],
	history RecordLog[types.HistoryEntry],
	feedback RecordLog[types.Feedback],
	log logging.Logger,
) *UserService {
	return &UserService{
		users:    users,
		activity: activity,
		history:  history,
		feedback: feedback,
		log:      log,
		now:      time.Now,
	}
}

func (s *UserService) timestamp() types.Timestamp {
	return types.NewTimestamp(s.now())
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, id string) (types.User, error) {
	return translateNotFound(s.users.GetByID(ctx, id))
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return translateNotFound(s.users.GetByUsername(ctx, username))
}

// Register creates a user, or refreshes an existing one with the same id.
// created reports which of the two happened.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (user types.User, created bool, err error) {
	if strings.TrimSpace(in.UserID) == "" {
		return types.User{}, false, ErrMissingUserID
	}

	now := s.timestamp()
	err = s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.IndexByID(users, in.UserID)
		if i < 0 {
			user = types.User{
				UserID:      in.UserID,
				Username:    in.Username,
				Email:       in.Email,
				Role:        types.RoleUser,
				CreatedAt:   now,
				LastLogin:   now,
				TotalLogins: 1,
			}
			applySecurityQuestion(&user, in)
			created = true
			return append(users, user), nil
		}

		u := &users[i]
		u.Username = in.Username
		if in.Email != "" {
			u.Email = in.Email
		}
		applySecurityQuestion(u, in)
		u.LastLogin = now
		u.TotalLogins++
		user = *u
		return users, nil
	})
	if err != nil {
		return types.User{}, false, err
	}

	if created {
		s.log.Info(ctx, "user registered", "user_id", user.UserID)
	}
	return user, created, nil
}

func applySecurityQuestion(u *types.User, in RegisterInput) {
	if in.SecurityQuestion != "" {
		u.SecurityQuestion = in.SecurityQuestion
	}
	if in.SecurityAnswer != "" {
		u.SecurityAnswerHash = auth.HashSecurityAnswer(in.SecurityAnswer)
	}
}

// RegisterWithPassword registers the user and sets their password.
func (s *UserService) RegisterWithPassword(ctx context.Context, in RegisterInput, password string) (types.User, bool, error) {
	_, created, err := s.Register(ctx, in)
	if err != nil {
		return types.User{}, false, err
	}
	user, err := s.SetPassword(ctx, in.UserID, password)
	if err != nil {
		return types.User{}, false, err
	}
	return user, created, nil
}

// Create registers a new user with a password in one write. Unlike Register
// it never touches an existing record.
func (s *UserService) Create(ctx context.Context, in RegisterInput, password string) (types.User, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return types.User{}, ErrMissingUserID
	}

	now := s.timestamp()
	user := types.User{
		UserID:      in.UserID,
		Username:    in.Username,
		Email:       in.Email,
		Role:        types.RoleUser,
		CreatedAt:   now,
		LastLogin:   now,
		TotalLogins: 1,
	}
	applySecurityQuestion(&user, in)
	if err := setCredentials(&user, password); err != nil {
		return types.User{}, err
	}

	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		if store.IndexByID(users, in.UserID) >= 0 {
			return nil, ErrUserExists
		}
		return append(users, user), nil
	})
	if err != nil {
		return types.User{}, err
	}

	s.log.Info(ctx, "user registered", "user_id", user.UserID)
	return user, nil
}

// SetPassword overwrites the user's credentials with a fresh salt and hash.
func (s *UserService) SetPassword(ctx context.Context, userID, password string) (types.User, error) {
	var user types.User
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.IndexByID(users, userID)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		if err := setCredentials(&users[i], password); err != nil {
			return nil, err
		}
		user = users[i]
		return users, nil
	})
	return user, err
}

func setCredentials(u *types.User, password string) error {
	ph, err := auth.HashPassword(password, nil)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordSalt = ph.Salt
	u.PasswordHash = ph.Hash
	return nil
}

// VerifyPassword checks a login attempt. identifier is a user id or a
// username. A successful check counts as a login.
func (s *UserService) VerifyPassword(ctx context.Context, identifier, password string) (types.User, error) {
	var user types.User
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.Resolve(users, identifier)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		u := &users[i]
		if !u.HasPassword() {
			return nil, ErrNoPasswordSet
		}
		if !auth.VerifyPassword(password, u.PasswordSalt, u.PasswordHash) {
			return nil, ErrInvalidPassword
		}
		u.TotalLogins++
		u.LastLogin = s.timestamp()
		user = *u
		return users, nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// PromoteToAdmin grants the admin role.
func (s *UserService) PromoteToAdmin(ctx context.Context, userID string) (types.User, error) {
	return s.setRole(ctx, userID, types.RoleAdmin)
}

// Demote returns an admin to the user role.
func (s *UserService) Demote(ctx context.Context, userID string) (types.User, error) {
	return s.setRole(ctx, userID, types.RoleUser)
}

func (s *UserService) setRole(ctx context.Context, userID, role string) (types.User, error) {
	var user types.User
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		if err := transitionRole(users, userID, role); err != nil {
			return nil, err
		}
		user = users[store.IndexByID(users, userID)]
		return users, nil
	})
	if err != nil {
		return types.User{}, err
	}
	s.log.Info(ctx, "user role changed", "user_id", userID, "role", role)
	return user, nil
}

// transitionRole is the only place a role changes. The admin cap is
// checked before the user lookup, so promoting anyone while the cap is
// reached fails with ErrAdminLimitReached.
func transitionRole(users []types.User, userID, role string) error {
	switch role {
	case types.RoleAdmin:
		if store.CountAdmins(users) >= MaxAdmins {
			return ErrAdminLimitReached
		}
	case types.RoleUser:
	default:
		return ErrInvalidRole
	}

	i := store.IndexByID(users, userID)
	if i < 0 {
		return ErrUserNotFound
	}
	users[i].Role = role
	return nil
}

// Delete removes the user record. Their logged activity is kept.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.IndexByID(users, userID)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		return append(users[:i], users[i+1:]...), nil
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "user deleted", "user_id", userID)
	return nil
}

// Replace moves a user to a new id, username and email, then reassigns
// their activity, history and feedback. The collections are updated one
// after another; a failure part-way leaves the earlier ones moved.
func (s *UserService) Replace(ctx context.Context, in ReplaceInput) (types.User, error) {
	if strings.TrimSpace(in.NewID) == "" {
		return types.User{}, ErrMissingUserID
	}

	var user types.User
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.IndexByID(users, in.OldID)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		if in.NewID != in.OldID && store.IndexByID(users, in.NewID) >= 0 {
			return nil, ErrUserExists
		}
		u := &users[i]
		u.UserID = in.NewID
		u.Username = in.NewUsername
		u.Email = in.NewEmail
		u.LastLogin = s.timestamp()
		user = *u
		return users, nil
	})
	if err != nil {
		return types.User{}, err
	}

	if in.NewID == in.OldID {
		return user, nil
	}

	moved, err := s.activity.Reassign(ctx, in.OldID, in.NewID)
	if err != nil {
		return user, fmt.Errorf("reassign activity: %w", err)
	}
	movedHistory, err := s.history.Reassign(ctx, in.OldID, in.NewID)
	if err != nil {
		return user, fmt.Errorf("reassign history: %w", err)
	}
	movedFeedback, err := s.feedback.Reassign(ctx, in.OldID, in.NewID)
	if err != nil {
		return user, fmt.Errorf("reassign feedback: %w", err)
	}

	s.log.Info(ctx, "user replaced",
		"old_user_id", in.OldID,
		"new_user_id", in.NewID,
		"activity", moved,
		"history", movedHistory,
		"feedback", movedFeedback,
	)
	return user, nil
}

func translateNotFound(user types.User, err error) (types.User, error) {
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return user, err
}
