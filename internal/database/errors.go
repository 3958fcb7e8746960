package database

import "errors"

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
	ErrShuttingDown  = errors.New("database manager is shutting down")
	ErrNilResult     = errors.New("match result cannot be nil")
)
