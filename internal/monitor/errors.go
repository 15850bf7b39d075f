package monitor

import "errors"

var (
	ErrSessionRunning    = errors.New("session is already running")
	ErrSessionNotRunning = errors.New("session is not running")
	ErrSessionTerminal   = errors.New("session is in a terminal phase")
	ErrNotVerified       = errors.New("face verification has not completed")
	ErrWrongPhase        = errors.New("operation not valid in the current phase")
	ErrPermissionDenied  = errors.New("required permission was not granted")
	ErrFaceNotMatched    = errors.New("face did not match the enrolled descriptor")
)
