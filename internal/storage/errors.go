package storage

import "errors"

// Domain errors for the storage package.
// Check with errors.Is().
var (
	// ErrKeyNotFound is returned when a key does not exist in a context.
	ErrKeyNotFound = errors.New("storage: key not found")

	// ErrCorrupted is returned when the backing store fails its integrity
	// check. Fatal unless a backup restore succeeds; immediately fatal
	// when restore is disabled.
	ErrCorrupted = errors.New("storage: store corrupted")

	// ErrInvalidNamespace is returned when a context namespace is empty.
	ErrInvalidNamespace = errors.New("storage: namespace cannot be empty")
)
