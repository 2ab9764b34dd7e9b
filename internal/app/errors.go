package service

import (
	"errors"
)

// Sentinel kinds for aggregator errors.
var (
	ErrNotFound        = errors.New("event not found")
	ErrAggregation     = errors.New("aggregation failed")
	ErrCreateEvent     = errors.New("create event failed")
	ErrLoadEvent       = errors.New("load event failed")
	ErrRefreshExternal = errors.New("refresh external events failed")
	ErrNotStarted      = errors.New("service not started")
)

// User-facing messages surfaced in the aggregate error field and API responses.
const (
	MsgLoadEvents      = "Failed to load events. Please check your internet connection and ensure API keys are set."
	MsgCreateEvent     = "Failed to create event. Please try again."
	MsgLoadEvent       = "Failed to load event. Please try again."
	MsgRefreshExternal = "Failed to refresh external events."
	MsgSourceTimeout   = "request timed out"
	MsgGeneralFetch    = "General fetch error"
	MsgRefreshFailed   = "Failed to refresh"
)

// UserError carries a message safe to show to end users. The underlying
// cause stays reachable through errors.Is/As.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string { return e.Msg }

func (e *UserError) Unwrap() error { return e.Err }

func userError(msg string, kind, cause error) error {
	return &UserError{Msg: msg, Err: errors.Join(kind, cause)}
}
