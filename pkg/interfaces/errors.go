package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrConnectionNotFound = errors.New("connection not found")
)
