package problem

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"codeduel/pkg/types"
)

// DefaultFeedURL is the public problem listing the remote source reads.
const DefaultFeedURL = "https://leetcode.com/api/problems/all/"

type feedResponse struct {
	StatStatusPairs []feedPair `json:"stat_status_pairs"`
}

type feedPair struct {
	Stat struct {
		QuestionID         int    `json:"question_id"`
		FrontendQuestionID int    `json:"frontend_question_id"`
		Title              string `json:"question__title"`
		TitleSlug          string `json:"question__title_slug"`
	} `json:"stat"`
	Difficulty struct {
		Level int `json:"level"`
	} `json:"difficulty"`
	PaidOnly bool `json:"paid_only"`
}

// HTTPSource reads the full problem list from a remote JSON feed.
type HTTPSource struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPSource creates a source for url. A nil client gets a 10 second timeout.
func NewHTTPSource(url string, client *http.Client, logger zerolog.Logger) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{
		url:    url,
		client: client,
		logger: logger.With().Str("component", "problem_feed").Logger(),
	}
}

// FetchProblems downloads and decodes the feed. Any transport, status or
// decoding failure fails the whole fetch.
func (s *HTTPSource) FetchProblems(ctx context.Context) ([]types.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	if len(feed.StatStatusPairs) == 0 {
		return nil, ErrEmptyFeed
	}

	entries := make([]types.FeedEntry, 0, len(feed.StatStatusPairs))
	for _, pair := range feed.StatStatusPairs {
		if pair.Stat.Title == "" {
			continue
		}
		id := pair.Stat.FrontendQuestionID
		if id == 0 {
			id = pair.Stat.QuestionID
		}
		problemSlug := pair.Stat.TitleSlug
		if problemSlug == "" {
			problemSlug = slug.Make(pair.Stat.Title)
		}
		entries = append(entries, types.FeedEntry{
			ExternalID: strconv.Itoa(id),
			Title:      pair.Stat.Title,
			Slug:       problemSlug,
			Level:      pair.Difficulty.Level,
			PaidOnly:   pair.PaidOnly,
		})
	}

	s.logger.Debug().Int("problems", len(entries)).Msg("fetched problem feed")
	return entries, nil
}
