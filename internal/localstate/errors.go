package localstate

import "errors"

var (
	ErrStoreClosed = errors.New("local state store is closed")
	ErrEmptyKey    = errors.New("key cannot be empty")
)
