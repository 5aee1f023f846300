package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidRole = errors.New("role cannot sign a publication")
)
