package shared

import "errors"

var (
	// ErrNotFound indicates the referenced entity does not exist or is inactive.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a caller error; never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a concurrent writer moved the entity between this
	// caller's read and write. The caller may re-read and retry.
	ErrConflict = errors.New("concurrent modification")
	// ErrDuplicateReference indicates a client reference was already processed.
	ErrDuplicateReference = errors.New("duplicate reference")
)
