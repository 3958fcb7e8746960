package interfaces

import (
	"context"

	"codeduel/pkg/types"
)

// ResultStore persists match outcomes. Rooms themselves are never persisted.
type ResultStore interface {
	// RecordMatch stores a finished match.
	RecordMatch(ctx context.Context, result *types.MatchResult) error

	// RecentMatches returns up to limit results, most recently ended first.
	RecentMatches(ctx context.Context, limit int) ([]*types.MatchResult, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
