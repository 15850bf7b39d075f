package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning   = errors.New("control hub is already running")
	ErrHubNotRunning       = errors.New("control hub is not running")
	ErrPublishChannelFull  = errors.New("publish channel is full")
	ErrInvalidControlEvent = errors.New("invalid control event type")
)
