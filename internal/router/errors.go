package router

import "errors"

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded: 100 messages per minute")
	ErrUnknownEvent      = errors.New("no handler for event")
	ErrNotIdentified     = errors.New("connection has not identified")
	ErrWrongSource       = errors.New("event not accepted from this client source")
)
