package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSixDigitCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := sixDigitCode()
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}

func TestRecovery_OTPHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.users.RegisterWithPassword(ctx, RegisterInput{UserID: "u1", Username: "Ann", Email: "ann@example.com"}, "old")
	require.NoError(t, err)

	res, err := f.recovery.GenerateOTP(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, "123456", res.OTP)
	assert.True(t, res.EmailSent)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), res.Expiry.Time)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "ann@example.com", f.mailer.sent[0].To)
	assert.Equal(t, 10, f.mailer.sent[0].ValidMinutes)

	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.recovery.ResetWithOTP(ctx, "u1", "123456", "new"))

	_, err = f.users.VerifyPassword(ctx, "u1", "new")
	require.NoError(t, err)

	user, err := f.users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, user.PasswordResetOTP)
	assert.Nil(t, user.PasswordResetOTPExpiry)

	err = f.recovery.ResetWithOTP(ctx, "u1", "123456", "again")
	assert.ErrorIs(t, err, ErrNoActiveOTP)
}

func TestRecovery_OTPFailuresLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", "Ann", "old")

	err := f.recovery.ResetWithOTP(ctx, "u1", "123456", "new")
	assert.ErrorIs(t, err, ErrNoActiveOTP)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	res, err := f.recovery.GenerateOTP(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.EmailSent, "no email on file")

	err = f.recovery.ResetWithOTP(ctx, "u1", "000000", "new")
	assert.ErrorIs(t, err, ErrInvalidOTP)

	f.clock.Advance(11 * time.Minute)
	err = f.recovery.ResetWithOTP(ctx, "u1", "123456", "new")
	assert.ErrorIs(t, err, ErrOTPExpired)
	assert.ErrorIs(t, err, apperr.ErrExpired)

	_, err = f.users.VerifyPassword(ctx, "u1", "old")
	require.NoError(t, err)

	user, err := f.users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "123456", user.PasswordResetOTP)

	_, err = f.recovery.GenerateOTP(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRecovery_MailFailureStillReturnsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.users.Register(ctx, RegisterInput{UserID: "u1", Username: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	f.mailer.err = errors.New("smtp down")

	res, err := f.recovery.GenerateOTP(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "123456", res.OTP)
	assert.False(t, res.EmailSent)
}

func TestRecovery_NilMailer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.users.Register(ctx, RegisterInput{UserID: "u1", Username: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	r := NewRecoveryService(f.stores.Users, nil, 0, logging.Discard())
	res, err := r.GenerateOTP(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.EmailSent)
	assert.Len(t, res.OTP, 6)
}

func TestRecovery_SecurityQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.users.RegisterWithPassword(ctx, RegisterInput{
		UserID:           "u1",
		Username:         "Ann",
		SecurityQuestion: "First pet?",
		SecurityAnswer:   "Rex",
	}, "old")
	require.NoError(t, err)
	f.register(t, "u2", "Bob", "pw")

	q, err := f.recovery.SecurityQuestion(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, "First pet?", q)

	_, err = f.recovery.SecurityQuestion(ctx, "u2")
	assert.ErrorIs(t, err, ErrNoSecurityQuestion)

	assert.ErrorIs(t, f.recovery.ResetWithSecurityQuestion(ctx, "u1", "Max", "new"), ErrWrongAnswer)
	assert.ErrorIs(t, f.recovery.ResetWithSecurityQuestion(ctx, "u2", "", "new"), ErrWrongAnswer)
	assert.ErrorIs(t, f.recovery.ResetWithSecurityQuestion(ctx, "ghost", "Rex", "new"), ErrUserNotFound)

	require.NoError(t, f.recovery.ResetWithSecurityQuestion(ctx, "u1", "  rEx ", "new"))
	_, err = f.users.VerifyPassword(ctx, "u1", "new")
	assert.NoError(t, err)
}
