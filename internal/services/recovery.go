package services

import (
	"context"
	"crypto/subtle"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/codegenie/apiserver/internal/auth"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/mail"
	"github.com/codegenie/apiserver/internal/store"
	"github.com/codegenie/apiserver/types"
)

// DefaultOTPValidity is how long a reset code stays usable.
const DefaultOTPValidity = 10 * time.Minute

// OTPMailer delivers reset codes.
type OTPMailer interface {
	SendOTP(ctx context.Context, msg mail.OTPMessage) error
}

// OTPResult is returned to the caller even when mail delivery fails, so a
// deployment without SMTP can still complete a reset.
type OTPResult struct {
	UserID    string          `json:"user_id"`
	OTP       string          `json:"otp"`
	Expiry    types.Timestamp `json:"expiry"`
	EmailSent bool            `json:"email_sent"`
}

// RecoveryService handles password resets.
type RecoveryService struct {
	users    UserRepository
	mailer   OTPMailer
	validity time.Duration
	log      logging.Logger
	now      func() time.Time
	newCode  func() string
}

func NewRecoveryService(users UserRepository, mailer OTPMailer, validity time.Duration, log logging.Logger) *RecoveryService {
	if validity <= 0 {
		validity = DefaultOTPValidity
	}
	return &RecoveryService{
		users:    users,
		mailer:   mailer,
		validity: validity,
		log:      log,
		now:      time.Now,
		newCode:  sixDigitCode,
	}
}

// sixDigitCode returns a code in [100000, 999999].
func sixDigitCode() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

// GenerateOTP stores a fresh code on the user and tries to mail it.
func (s *RecoveryService) GenerateOTP(ctx context.Context, identifier string) (OTPResult, error) {
	code := s.newCode()
	expiry := types.NewTimestamp(s.now().Add(s.validity))

	var user types.User
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.Resolve(users, identifier)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		users[i].PasswordResetOTP = code
		users[i].PasswordResetOTPExpiry = &expiry
		user = users[i]
		return users, nil
	})
	if err != nil {
		return OTPResult{}, err
	}

	result := OTPResult{UserID: user.UserID, OTP: code, Expiry: expiry}
	if user.Email != "" && s.mailer != nil {
		if err := s.mailer.SendOTP(ctx, mail.NewOTPMessage(user.Email, code, s.validity)); err != nil {
			s.log.Warn(ctx, "otp mail not sent", "user_id", user.UserID, "error", err)
		} else {
			result.EmailSent = true
		}
	}
	s.log.Info(ctx, "password reset otp issued", "user_id", user.UserID, "email_sent", result.EmailSent)
	return result, nil
}

// ResetWithOTP sets a new password when code matches the stored one and
// has not expired. The code is single-use.
func (s *RecoveryService) ResetWithOTP(ctx context.Context, identifier, code, newPassword string) error {
	now := s.now()
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.Resolve(users, identifier)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		u := &users[i]
		if u.PasswordResetOTP == "" {
			return nil, ErrNoActiveOTP
		}
		if subtle.ConstantTimeCompare([]byte(u.PasswordResetOTP), []byte(code)) != 1 {
			return nil, ErrInvalidOTP
		}
		if u.PasswordResetOTPExpiry != nil && now.After(u.PasswordResetOTPExpiry.Time) {
			return nil, ErrOTPExpired
		}
		if err := setCredentials(u, newPassword); err != nil {
			return nil, err
		}
		u.PasswordResetOTP = ""
		u.PasswordResetOTPExpiry = nil
		return users, nil
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "password reset with otp", "identifier", identifier)
	return nil
}

// SecurityQuestion returns the question the user registered with.
func (s *RecoveryService) SecurityQuestion(ctx context.Context, identifier string) (string, error) {
	user, err := translateNotFound(s.users.Resolve(ctx, identifier))
	if err != nil {
		return "", err
	}
	if user.SecurityQuestion == "" {
		return "", ErrNoSecurityQuestion
	}
	return user.SecurityQuestion, nil
}

// ResetWithSecurityQuestion sets a new password when answer matches the
// stored answer hash. A user without an answer on file always fails.
func (s *RecoveryService) ResetWithSecurityQuestion(ctx context.Context, identifier, answer, newPassword string) error {
	err := s.users.Update(ctx, func(users []types.User) ([]types.User, error) {
		i := store.Resolve(users, identifier)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		u := &users[i]
		if !auth.SecurityAnswerMatches(answer, u.SecurityAnswerHash) {
			return nil, ErrWrongAnswer
		}
		if err := setCredentials(u, newPassword); err != nil {
			return nil, err
		}
		return users, nil
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "password reset with security question", "identifier", identifier)
	return nil
}
