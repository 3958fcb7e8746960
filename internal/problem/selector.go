package problem

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"codeduel/pkg/interfaces"
	"codeduel/pkg/types"
)

// DefaultFetchTimeout bounds a single remote fetch.
const DefaultFetchTimeout = 5 * time.Second

// Selector picks a problem for a match. Select never fails: when the remote
// source cannot yield a candidate it degrades to the offline catalog.
type Selector struct {
	source  interfaces.ProblemSource
	catalog []types.FeedEntry
	timeout time.Duration
	intn    func(n int) int
	logger  zerolog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithIntn replaces the random source; intn(n) must return a value in [0, n).
func WithIntn(intn func(n int) int) Option {
	return func(s *Selector) {
		if intn != nil {
			s.intn = intn
		}
	}
}

// WithCatalog replaces the offline catalog. An empty catalog is ignored.
func WithCatalog(entries []types.FeedEntry) Option {
	return func(s *Selector) {
		if len(entries) > 0 {
			s.catalog = entries
		}
	}
}

// WithLogger sets the selector's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Selector) {
		s.logger = logger.With().Str("component", "problem_selector").Logger()
	}
}

// NewSelector creates a selector over source. A nil source selects from
// the offline catalog only.
func NewSelector(source interfaces.ProblemSource, opts ...Option) *Selector {
	s := &Selector{
		source:  source,
		catalog: Catalog(),
		timeout: DefaultFetchTimeout,
		intn:    rand.Intn,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns a problem matching topic and difficulty as closely as the
// source allows. The cascade is: free problems at the requested level whose
// title contains topic; then the level without the topic; then the default
// level; then the offline catalog at the requested level; then any offline
// problem. A topic of "all" or "" applies no topic filter.
func (s *Selector) Select(ctx context.Context, topic, difficulty string) types.Problem {
	level := types.ParseDifficulty(difficulty).Level()

	if s.source == nil {
		return s.offline(level)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entries, err := s.source.FetchProblems(fetchCtx)
	if err != nil {
		s.logger.Warn().Err(err).Str("difficulty", string(types.DifficultyFromLevel(level))).Msg("problem source failed, using offline catalog")
		return s.offline(level)
	}

	free := lo.Reject(entries, func(e types.FeedEntry, _ int) bool { return e.PaidOnly })

	candidates := atLevel(free, level)
	if topicFilter(topic) {
		needle := strings.ToLower(strings.TrimSpace(topic))
		withTopic := lo.Filter(candidates, func(e types.FeedEntry, _ int) bool {
			return strings.Contains(strings.ToLower(e.Title), needle)
		})
		if len(withTopic) > 0 {
			candidates = withTopic
		} else {
			s.logger.Debug().Str("topic", topic).Str("difficulty", string(types.DifficultyFromLevel(level))).Msg("no problem matches topic, dropping topic filter")
		}
	}

	if len(candidates) == 0 {
		candidates = atLevel(free, types.DefaultDifficulty.Level())
	}

	if len(candidates) == 0 {
		s.logger.Warn().Str("difficulty", string(types.DifficultyFromLevel(level))).Msg("remote source had no usable problems, using offline catalog")
		return s.offline(level)
	}

	return s.pick(candidates)
}

func (s *Selector) offline(level int) types.Problem {
	candidates := atLevel(s.catalog, level)
	if len(candidates) == 0 {
		candidates = s.catalog
	}
	return s.pick(candidates)
}

func (s *Selector) pick(candidates []types.FeedEntry) types.Problem {
	return candidates[s.intn(len(candidates))].Problem()
}

func atLevel(entries []types.FeedEntry, level int) []types.FeedEntry {
	return lo.Filter(entries, func(e types.FeedEntry, _ int) bool { return e.Level == level })
}

func topicFilter(topic string) bool {
	t := strings.TrimSpace(topic)
	return t != "" && !strings.EqualFold(t, "all")
}
