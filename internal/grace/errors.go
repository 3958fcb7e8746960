package grace

import "errors"

var (
	ErrTimerExists = errors.New("grace timer already armed for identity")
	ErrStopped     = errors.New("grace scheduler is stopped")
)
