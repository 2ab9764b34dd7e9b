package model

import "errors"

// Sentinel kinds for domain errors.
var (
	ErrInvalidDraft = errors.New("invalid event draft")
)
