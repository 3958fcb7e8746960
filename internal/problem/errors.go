package problem

import "errors"

var (
	ErrSourceUnavailable = errors.New("problem source unavailable")
	ErrEmptyFeed         = errors.New("problem feed returned no problems")
	ErrMalformedFeed     = errors.New("problem feed is malformed")
)
