package seed

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid seed configuration")
	ErrUnhealthy     = errors.New("service is not healthy")
	ErrVerification  = errors.New("created events missing from the collection")
)
