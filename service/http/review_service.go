package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/model"
)

type HTTPReviewService struct {
	client *remoteClient
}

// NewHTTPReviewService creates a review store client with connection pooling
func NewHTTPReviewService(cfg *config.RemoteService) *HTTPReviewService {
	return &HTTPReviewService{client: newRemoteClient("review-service", cfg)}
}

// HasReviews calls GET <base>/review-by-concert?concertId=<id> and only
// looks at whether the returned array is empty.
func (s *HTTPReviewService) HasReviews(ctx context.Context, concertID int64) (bool, error) {
	target := s.client.endpoint("review-by-concert", url.Values{"concertId": {strconv.FormatInt(concertID, 10)}})

	items, err := s.getArray(ctx, target)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// ListReviewIDsForPerformer calls GET <base>/id-by-performer?performerId=<id>.
// String ids are unquoted, any other JSON value keeps its literal text.
func (s *HTTPReviewService) ListReviewIDsForPerformer(ctx context.Context, performerID int64) ([]string, error) {
	target := s.client.endpoint("id-by-performer", url.Values{"performerId": {strconv.FormatInt(performerID, 10)}})

	items, err := s.getArray(ctx, target)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, raw := range items {
		ids = append(ids, reviewIDFromJSON(raw))
	}
	return ids, nil
}

// DeleteReview calls DELETE <base>/delete?reviewId=<id>. A 404 means the
// review is already gone and counts as success.
func (s *HTTPReviewService) DeleteReview(ctx context.Context, reviewID string) error {
	target := s.client.endpoint("delete", url.Values{"reviewId": {reviewID}})

	resp, err := s.client.do(ctx, http.MethodDelete, target)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrReviewServiceUnavailable, err)
	}

	if isSuccess(resp.StatusCode) || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("%w: delete review %s returned status %d: %s",
		model.ErrReviewServiceUnavailable, reviewID, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
}

func (s *HTTPReviewService) getArray(ctx context.Context, target string) ([]json.RawMessage, error) {
	resp, err := s.client.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrReviewServiceUnavailable, err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: review service error (status %d): %s",
			model.ErrReviewServiceUnavailable, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", model.ErrReviewServiceUnavailable, err)
	}
	return items, nil
}

func reviewIDFromJSON(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
