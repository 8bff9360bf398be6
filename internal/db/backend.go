// Package db holds the document backends that persist each collection as a
// single JSON array.
package db

import (
	"context"
	"fmt"

	"github.com/codegenie/apiserver/internal/apperr"
)

// Collection names.
const (
	Users    = "users"
	Activity = "activity"
	History  = "history"
	Feedback = "feedback"
)

// Collections lists every collection the server persists.
var Collections = []string{Users, Activity, History, Feedback}

// ErrUninitialized is returned by Read when a collection was never created.
var ErrUninitialized = apperr.New(apperr.ErrIO, "collection not initialized")

// emptyCollection is the payload a freshly initialized collection holds.
var emptyCollection = []byte("[]")

// Backend stores one opaque document per collection name.
type Backend interface {
	// Init creates the collection with an empty array when it does not
	// exist. created reports whether anything was written.
	Init(ctx context.Context, name string) (created bool, err error)
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Close() error
}

// ValidName reports whether name is a known collection.
func ValidName(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

func checkName(name string) error {
	if !ValidName(name) {
		return apperr.New(apperr.ErrInvalidInput, fmt.Sprintf("unknown collection %q", name))
	}
	return nil
}
