package store

import "errors"

var (
	ErrNotFound    = errors.New("path not found")
	ErrInvalidPath = errors.New("invalid path")
	ErrTxConflict  = errors.New("transaction retries exhausted")
	ErrClosed      = errors.New("store closed")
)
