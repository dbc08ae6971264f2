package interfaces

import "errors"

var (
	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAssigned means an assignment attempt lost the race: the
	// request already carries a winning provider or left pending.
	ErrAlreadyAssigned = errors.New("request already assigned")

	// ErrTerminalState means the request is completed, cancelled or
	// expired and accepts no further transitions.
	ErrTerminalState = errors.New("request in terminal state")

	// ErrInvalidTransition means the requested status change is not in
	// the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateKey means a unique index rejected the write, e.g. a
	// replayed idempotency key racing its original.
	ErrDuplicateKey = errors.New("duplicate key")
)
