// Package sponsorblock fetches skip segments from the SponsorBlock API.
package sponsorblock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// ErrIgnore signals that the fetch should be dropped without retry
// escalation (the API's 5xx family).
var ErrIgnore = errors.New("sponsorblock fetch should be ignored")

// DefaultCategories are requested when the caller passes none
var DefaultCategories = []string{"sponsor", "selfpromo", "interaction", "intro", "outro"}

// ignoredStatusCodes is the 5xx family the API emits under load
var ignoredStatusCodes = map[int]bool{
	500: true, 502: true, 503: true, 504: true,
	521: true, 522: true, 523: true, 524: true,
}

// Segment is one skippable interval reported by the API
type Segment struct {
	Category   string     `json:"category"`
	ActionType string     `json:"actionType"`
	Segment    [2]float64 `json:"segment"`
	UUID       string     `json:"UUID"`
	Votes      int        `json:"votes"`
}

// Client wraps the SponsorBlock REST API
type Client struct {
	rest   *resty.Client
	logger *logrus.Logger
}

// NewClient creates a SponsorBlock client against the given base URL
func NewClient(baseURL string, logger *logrus.Logger) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &Client{rest: rest, logger: logger}
}

// SkipSegments fetches segments for a provider video id. A 404 means the
// API has no data and yields an empty list; the 5xx family yields
// ErrIgnore. Transient transport errors are retried with exponential
// backoff up to three attempts.
func (c *Client) SkipSegments(ctx context.Context, videoID string, categories []string) ([]Segment, error) {
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	var segments []Segment
	operation := func() error {
		req := c.rest.R().
			SetContext(ctx).
			SetQueryParam("videoID", videoID).
			SetResult(&segments)
		for _, category := range categories {
			req.QueryParam.Add("category", category)
		}

		resp, err := req.Get("/api/skipSegments")
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode() == 404:
			segments = nil
			return nil
		case ignoredStatusCodes[resp.StatusCode()]:
			return backoff.Permanent(ErrIgnore)
		case resp.IsError():
			return fmt.Errorf("sponsorblock returned %d", resp.StatusCode())
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, ErrIgnore) {
			c.logger.WithField("video_id", videoID).Debug("SponsorBlock unavailable, ignoring")
			return nil, ErrIgnore
		}
		return nil, err
	}
	return segments, nil
}
