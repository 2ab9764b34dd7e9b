package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	// ErrMiss is returned by a KV when the key does not exist.
	ErrMiss = errors.New("cache miss")
)
