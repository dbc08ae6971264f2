package services

import "errors"

var (
	// ErrValidation marks input the intake refused before touching
	// storage. Handlers map it to a 400.
	ErrValidation = errors.New("validation failed")

	// ErrNotAllowed means the caller does not own the resource they
	// tried to act on.
	ErrNotAllowed = errors.New("not allowed")
)
