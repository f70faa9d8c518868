package domain

import "errors"

// Sentinel errors shared across layers. Repositories and the queue translate
// backend-specific failures into these; handlers map them to HTTP codes.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
