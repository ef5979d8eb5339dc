package ledger

import "errors"

var (
	ErrRequestInFlight = errors.New("a request for this course is already awaiting the device")
	ErrInvalidRequest  = errors.New("ongoing request needs an email, a course code and a feedback event")
	ErrInvalidTTL      = errors.New("ongoing request ttl must be positive")
)
