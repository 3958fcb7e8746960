package types

import "errors"

var (
	ErrInvalidRoomID    = errors.New("room ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidUsername  = errors.New("username must be 1-50 characters")
	ErrInvalidEventType = errors.New("invalid event type")
	ErrMissingText      = errors.New("chat message text cannot be empty")
	ErrMissingTarget    = errors.New("voice signal requires a target connection")
	ErrInvalidPayload   = errors.New("invalid event payload")
)
