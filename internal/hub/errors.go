package hub

import "errors"

var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrHubStopped         = errors.New("hub was stopped and cannot be restarted")
	ErrInboundChannelFull = errors.New("inbound channel is full")
	ErrTaskChannelFull    = errors.New("task channel is full")
)
