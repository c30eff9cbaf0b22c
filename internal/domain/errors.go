package domain

import "errors"

var (
	// ErrNotFound is returned when a context, group or target does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed input
	ErrValidation = errors.New("validation failed")
	// ErrInvalidContextData is returned when context data is not a mapping at the top level
	// or holds a value that cannot be stored, such as NaN
	ErrInvalidContextData = errors.New("invalid context data")
	// ErrConflict is returned when a unique name is already taken
	ErrConflict = errors.New("already exists")
)
