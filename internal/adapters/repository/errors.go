package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("event not found")
	ErrClosed         = errors.New("store closed")
	ErrInvalidPayload = errors.New("invalid change payload")
)
