package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-set update finds the record in
// a different state than expected.
var ErrConflict = errors.New("conflict")
