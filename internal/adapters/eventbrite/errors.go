package eventbrite

import "errors"

// Sentinel kinds for feed errors.
var (
	ErrNoCredential = errors.New("eventbrite credential not configured")
	ErrProvider     = errors.New("eventbrite provider error")
	ErrProxy        = errors.New("eventbrite proxy error")
	ErrNotJSON      = errors.New("non-JSON response")
)
