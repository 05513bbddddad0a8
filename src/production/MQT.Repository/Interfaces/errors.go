package interfaces

import "errors"

// Repository misses are reported as sql.ErrNoRows; these cover the remaining cases.
var (
	// ErrDuplicate is returned when a per-owner unique name is already taken
	ErrDuplicate = errors.New("already exists")

	// ErrReferenceMissing is returned when a row points at a parent that does not exist
	ErrReferenceMissing = errors.New("referenced row does not exist")
)
