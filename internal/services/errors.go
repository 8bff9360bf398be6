package services

import "github.com/codegenie/apiserver/internal/apperr"

var (
	ErrUserNotFound       = apperr.New(apperr.ErrNotFound, "user not found")
	ErrUserExists         = apperr.New(apperr.ErrInvalidInput, "user already exists")
	ErrMissingUserID      = apperr.New(apperr.ErrInvalidInput, "user id is required")
	ErrNoPasswordSet      = apperr.New(apperr.ErrInvalidInput, "password not set for user")
	ErrInvalidPassword    = apperr.New(apperr.ErrInvalidInput, "invalid password")
	ErrAdminLimitReached  = apperr.New(apperr.ErrLimitExceeded, "maximum number of admins (2) reached")
	ErrInvalidRole        = apperr.New(apperr.ErrInvalidInput, "invalid role")
	ErrNoActiveOTP        = apperr.New(apperr.ErrNotFound, "no active otp for user")
	ErrInvalidOTP         = apperr.New(apperr.ErrInvalidInput, "invalid otp")
	ErrOTPExpired         = apperr.New(apperr.ErrExpired, "otp expired")
	ErrNoSecurityQuestion = apperr.New(apperr.ErrNotFound, "no security question set for user")
	ErrWrongAnswer        = apperr.New(apperr.ErrInvalidInput, "incorrect security answer")
	ErrInvalidRating      = apperr.New(apperr.ErrInvalidInput, "rating must be between 1 and 5")
	ErrInvalidAvatar      = apperr.New(apperr.ErrInvalidInput, "avatar must be a PNG image")
	ErrAvatarTooLarge     = apperr.New(apperr.ErrInvalidInput, "avatar exceeds the size limit")
	ErrAvatarNotFound     = apperr.New(apperr.ErrNotFound, "avatar not found")
)
