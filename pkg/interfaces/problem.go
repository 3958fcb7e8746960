package interfaces

import (
	"context"

	"codeduel/pkg/types"
)

// ProblemSource lists every problem a match can be assigned.
// A returned error means the whole listing is unavailable.
type ProblemSource interface {
	FetchProblems(ctx context.Context) ([]types.FeedEntry, error)
}
