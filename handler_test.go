package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arunvm123/concerttrack/cache"
	redisCache "github.com/arunvm123/concerttrack/cache/redis"
	"github.com/arunvm123/concerttrack/model"
	"github.com/arunvm123/concerttrack/orchestrator"
	"github.com/arunvm123/concerttrack/repository/memory"
	"github.com/arunvm123/concerttrack/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubPerformers struct {
	known       map[int64]bool
	unreachable bool
}

func (s *stubPerformers) CheckPerformer(ctx context.Context, performerID int64) (service.PerformerStatus, error) {
	if s.unreachable {
		return service.PerformerUnreachable, errors.New("dial tcp: connection refused")
	}
	if s.known[performerID] {
		return service.PerformerValid, nil
	}
	return service.PerformerInvalid, nil
}

type stubReviews struct {
	byConcert   map[int64]int
	byPerformer map[int64][]string
	failDelete  map[string]bool
	deleted     []string
}

func (s *stubReviews) HasReviews(ctx context.Context, concertID int64) (bool, error) {
	return s.byConcert[concertID] > 0, nil
}

func (s *stubReviews) ListReviewIDsForPerformer(ctx context.Context, performerID int64) ([]string, error) {
	return append([]string{}, s.byPerformer[performerID]...), nil
}

func (s *stubReviews) DeleteReview(ctx context.Context, reviewID string) error {
	if s.failDelete[reviewID] {
		return fmt.Errorf("%w: status 500", model.ErrReviewServiceUnavailable)
	}
	s.deleted = append(s.deleted, reviewID)
	return nil
}

type testServer struct {
	router     *gin.Engine
	repo       *memory.ConcertRepository
	performers *stubPerformers
	reviews    *stubReviews
}

var handlerNow = time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, concertCache cache.ConcertCache) *testServer {
	t.Helper()
	s := &testServer{
		repo:       memory.NewConcertRepository(),
		performers: &stubPerformers{known: map[int64]bool{7: true, 9: true}},
		reviews: &stubReviews{
			byConcert:   map[int64]int{},
			byPerformer: map[int64][]string{},
			failDelete:  map[string]bool{},
		},
	}
	concerts := orchestrator.NewConcertOrchestrator(s.repo, s.performers, s.reviews).
		WithClock(func() time.Time { return handlerNow })
	s.router = NewRouter(NewConcertHandler(concerts, concertCache, s.repo, time.Minute, time.Minute))
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) create(t *testing.T, performerID int64, day, stage string) model.ConcertResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/concerts", map[string]interface{}{
		"performer_id": performerID,
		"day":          day,
		"stage":        stage,
		"begin_time":   "18:00",
		"end_time":     "20:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp model.ConcertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateAndFetchConcert(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})

	created := s.create(t, 7, "2024-01-01", "Main")
	assert.NotZero(t, created.ConcertID)
	assert.Equal(t, "2024-01-01", created.Day)
	assert.Equal(t, "18:00", created.BeginTime)

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/concerts/%d", created.ConcertID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.ConcertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created, got)

	w = s.do(t, http.MethodGet, "/api/concerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list model.ConcertListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestCreateErrors(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})

	tests := []struct {
		name        string
		body        map[string]interface{}
		status      int
		errorCode   string
		unreachable bool
	}{
		{
			name:      "unknown performer",
			body:      map[string]interface{}{"performer_id": 8, "day": "2024-01-01", "stage": "Main", "begin_time": "18:00", "end_time": "20:00"},
			status:    http.StatusBadRequest,
			errorCode: "invalid_performer",
		},
		{
			name:        "registry down",
			body:        map[string]interface{}{"performer_id": 7, "day": "2024-01-01", "stage": "Main", "begin_time": "18:00", "end_time": "20:00"},
			status:      http.StatusServiceUnavailable,
			errorCode:   "performer_registry_unavailable",
			unreachable: true,
		},
		{
			name:      "missing begin time",
			body:      map[string]interface{}{"performer_id": 7, "day": "2024-01-01", "stage": "Main", "end_time": "20:00"},
			status:    http.StatusBadRequest,
			errorCode: "validation_failed",
		},
		{
			name:      "missing end time",
			body:      map[string]interface{}{"performer_id": 7, "day": "2024-01-01", "stage": "Main", "begin_time": "18:00"},
			status:    http.StatusBadRequest,
			errorCode: "validation_failed",
		},
		{
			name:      "bad day",
			body:      map[string]interface{}{"performer_id": 7, "day": "01/01/2024", "stage": "Main", "begin_time": "18:00", "end_time": "20:00"},
			status:    http.StatusBadRequest,
			errorCode: "validation_failed",
		},
		{
			name:      "missing stage",
			body:      map[string]interface{}{"performer_id": 7, "day": "2024-01-01", "begin_time": "18:00", "end_time": "20:00"},
			status:    http.StatusBadRequest,
			errorCode: "validation_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.performers.unreachable = tt.unreachable
			w := s.do(t, http.MethodPost, "/api/concerts", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.errorCode, decodeError(t, w).Error)
		})
	}

	all, err := s.repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateSetPastMidnight(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})

	w := s.do(t, http.MethodPost, "/api/concerts", map[string]interface{}{
		"performer_id": 7,
		"day":          "2024-01-01",
		"stage":        "Tent",
		"begin_time":   "22:00",
		"end_time":     "01:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created model.ConcertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "22:00", created.BeginTime)
	assert.Equal(t, "01:00", created.EndTime)
}

func TestInvalidAndMissingIDs(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})

	w := s.do(t, http.MethodGet, "/api/concerts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", decodeError(t, w).Error)

	w = s.do(t, http.MethodGet, "/api/concerts/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/concerts/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/concerts/valid-review?id=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateConcert(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})
	created := s.create(t, 7, "2024-01-01", "Main")
	path := fmt.Sprintf("/api/concerts/%d", created.ConcertID)

	w := s.do(t, http.MethodPut, path, map[string]interface{}{"stage": "Side", "end_time": "21:30"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated model.ConcertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Side", updated.Stage)
	assert.Equal(t, "21:30", updated.EndTime)
	assert.Equal(t, int64(7), updated.PerformerID)

	s.reviews.byConcert[created.ConcertID] = 1
	w = s.do(t, http.MethodPut, path, map[string]interface{}{"performer_id": 9})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "concert_has_reviews", decodeError(t, w).Error)

	w = s.do(t, http.MethodPut, path, map[string]interface{}{"begin_time": "23:00", "end_time": "01:30"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "23:00", updated.BeginTime)
	assert.Equal(t, "01:30", updated.EndTime)

	stored, err := s.repo.FindByID(context.Background(), created.ConcertID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.PerformerID)
	assert.Equal(t, "Side", stored.Stage)
}

func TestDeleteConcertCascade(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})
	created := s.create(t, 7, "2024-01-01", "Main")
	s.reviews.byPerformer[7] = []string{"r1", "r2"}

	w := s.do(t, http.MethodDelete, fmt.Sprintf("/api/concerts/%d", created.ConcertID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report model.CascadeReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.ReviewsFound)
	assert.Equal(t, []string{"r1", "r2"}, report.ReviewsDeleted)
	assert.Equal(t, []string{"r1", "r2"}, s.reviews.deleted)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/concerts/%d", created.ConcertID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteConcertPartialCascade(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})
	created := s.create(t, 7, "2024-01-01", "Main")
	s.reviews.byPerformer[7] = []string{"r1", "r2", "r3"}
	s.reviews.failDelete["r2"] = true

	w := s.do(t, http.MethodDelete, fmt.Sprintf("/api/concerts/%d", created.ConcertID), nil)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	var resp struct {
		Error   string              `json:"error"`
		Details model.CascadeReport `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "partial_cascade", resp.Error)
	assert.Equal(t, []string{"r1", "r3"}, resp.Details.ReviewsDeleted)
	require.Len(t, resp.Details.Failures, 1)
	assert.Equal(t, "r2", resp.Details.Failures[0].ReviewID)

	_, err := s.repo.FindByID(context.Background(), created.ConcertID)
	assert.ErrorIs(t, err, model.ErrConcertNotFound)
}

func TestValidReview(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})
	past := s.create(t, 7, "2024-01-01", "Main")
	today := s.create(t, 7, "2024-06-15", "Main")
	future := s.create(t, 7, "2024-12-01", "Main")

	for _, id := range []int64{past.ConcertID, today.ConcertID} {
		w := s.do(t, http.MethodGet, fmt.Sprintf("/api/concerts/valid-review?id=%d", id), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var eligibility model.ReviewEligibility
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eligibility))
		assert.True(t, eligibility.Eligible)
		assert.Equal(t, int64(7), eligibility.PerformerID)
	}

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/concerts/valid-review?id=%d", future.ConcertID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "review_not_allowed", decodeError(t, w).Error)
}

func TestCheckDeletePerformer(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})
	s.create(t, 7, "2024-01-01", "Main")

	w := s.do(t, http.MethodGet, "/api/concerts/check-delete-performer?performerId=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.PerformerDeletableResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Deletable)

	w = s.do(t, http.MethodGet, "/api/concerts/check-delete-performer?performerId=9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Deletable)

	w = s.do(t, http.MethodGet, "/api/concerts/check-delete-performer?performerId=8", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListQueries(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})
	s.create(t, 7, "2024-01-01", "Main Stage")
	s.create(t, 9, "2024-12-01", "Tent")

	count := func(path string) int {
		w := s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		var list model.ConcertListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		return list.Total
	}

	assert.Equal(t, 1, count("/api/concerts/by-stage?stage=main"))
	assert.Equal(t, 1, count("/api/concerts/by-performer?performerId=9"))
	assert.Equal(t, 1, count("/api/concerts/past"))
	assert.Equal(t, 1, count("/api/concerts/future"))
	assert.Equal(t, 1, count("/api/concerts/before?date=2024-06-01"))
	assert.Equal(t, 0, count("/api/concerts/after?date=2024-12-01"))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/concerts/by-stage", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/concerts/before?date=tomorrow", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/concerts/by-performer?performerId=8", nil).Code)
}

func TestReadsAreCachedAndMutationsInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redisCache.NewRedisConcertCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })
	s := newTestServer(t, rc)

	created := s.create(t, 7, "2024-01-01", "Main")
	path := fmt.Sprintf("/api/concerts/%d", created.ConcertID)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/concerts", nil).Code)
	assert.True(t, mr.Exists(fmt.Sprintf("concert:%d:details", created.ConcertID)))
	assert.True(t, mr.Exists("concerts:list:all"))

	w := s.do(t, http.MethodPut, path, map[string]interface{}{"stage": "Side"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists(fmt.Sprintf("concert:%d:details", created.ConcertID)))
	assert.False(t, mr.Exists("concerts:list:all"))

	w = s.do(t, http.MethodGet, path, nil)
	var got model.ConcertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Side", got.Stage)
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t, cache.NoopCache{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	var health model.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Checks["database"])

	w = s.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
