package models

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned for state changes outside the
	// transition table, or when the row is no longer in the expected state.
	ErrInvalidTransition = errors.New("invalid status transition")
)
