package problem

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"codeduel/pkg/interfaces"
	"codeduel/pkg/types"
)

// DefaultCacheKey is where the cached problem list is stored.
const DefaultCacheKey = "codeduel:problems:all"

// CachedSource serves the problem list from redis when present and fills
// the cache from upstream otherwise. Cache failures never fail a fetch.
type CachedSource struct {
	rdb      redis.Cmdable
	upstream interfaces.ProblemSource
	key      string
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewCachedSource wraps upstream with a redis cache entry of the given TTL.
func NewCachedSource(rdb redis.Cmdable, upstream interfaces.ProblemSource, key string, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if key == "" {
		key = DefaultCacheKey
	}
	return &CachedSource{
		rdb:      rdb,
		upstream: upstream,
		key:      key,
		ttl:      ttl,
		logger:   logger.With().Str("component", "problem_cache").Logger(),
	}
}

func (c *CachedSource) FetchProblems(ctx context.Context) ([]types.FeedEntry, error) {
	if entries, ok := c.load(ctx); ok {
		return entries, nil
	}

	entries, err := c.upstream.FetchProblems(ctx)
	if err != nil {
		return nil, err
	}

	c.store(ctx, entries)
	return entries, nil
}

func (c *CachedSource) load(ctx context.Context) ([]types.FeedEntry, bool) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("problem cache read failed")
		}
		return nil, false
	}

	var entries []types.FeedEntry
	if err := json.Unmarshal(data, &entries); err != nil || len(entries) == 0 {
		c.logger.Warn().Err(err).Msg("discarding unusable cached problem list")
		return nil, false
	}
	return entries, true
}

func (c *CachedSource) store(ctx context.Context, entries []types.FeedEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warn().Err(err).Msg("problem list not cacheable")
		return
	}
	if err := c.rdb.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("problem cache write failed")
	}
}
