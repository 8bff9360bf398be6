// Package apperr defines the error kinds shared by every layer.
//
// Each concrete error unwraps to exactly one kind, so callers classify with
// errors.Is(err, apperr.ErrNotFound) and friends without knowing the
// concrete error.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrLimitExceeded = errors.New("limit exceeded")
	ErrExpired       = errors.New("expired")
	ErrIO            = errors.New("io failure")
	ErrUpstream      = errors.New("upstream failure")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidInput,
	ErrLimitExceeded,
	ErrExpired,
	ErrIO,
	ErrUpstream,
}

// Error is a named error belonging to a kind.
type Error struct {
	kind error
	msg  string
}

// New returns an error with the given message that unwraps to kind.
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the kind sentinel.
func (e *Error) Kind() error { return e.kind }

type wrapped struct {
	kind error
	op   string
	err  error
}

func (w *wrapped) Error() string {
	if w.op == "" {
		return w.err.Error()
	}
	return w.op + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() []error { return []error{w.kind, w.err} }

// Wrap annotates err with an operation name and a kind. Errors that already
// carry a kind keep it and only gain the operation prefix.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if existing := KindOf(err); existing != nil {
		kind = existing
	}
	return &wrapped{kind: kind, op: op, err: err}
}

// KindOf returns the kind sentinel err belongs to, or nil.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
