package store

import (
	"fmt"

	"github.com/codegenie/apiserver/internal/apperr"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "not found")

// ErrCorrupted is returned when a collection holds something other than a
// JSON array. The data is left untouched until it is repaired.
var ErrCorrupted = apperr.New(apperr.ErrIO, "collection corrupted")

// CorruptedError names the collection that failed to decode.
type CorruptedError struct {
	Collection string
	Err        error
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("collection %s is corrupted: %v", e.Collection, e.Err)
}

func (e *CorruptedError) Unwrap() []error { return []error{ErrCorrupted, e.Err} }
