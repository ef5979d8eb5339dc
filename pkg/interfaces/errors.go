package interfaces

import "errors"

// Store errors shared by every persistence implementation.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with existing data")
)
