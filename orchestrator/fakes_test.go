package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arunvm123/concerttrack/model"
	"github.com/arunvm123/concerttrack/repository/memory"
	"github.com/arunvm123/concerttrack/service"
)

// journal records collaborator calls in the order they happen.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) record(format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, fmt.Sprintf(format, args...))
}

func (j *journal) entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *journal) count(prefix string) int {
	n := 0
	for _, c := range j.entries() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type recordingRepo struct {
	*memory.ConcertRepository
	log       *journal
	saveErr   error
	deleteErr error
}

func (r *recordingRepo) FindByID(ctx context.Context, id int64) (*model.Concert, error) {
	r.log.record("store.findById(%d)", id)
	return r.ConcertRepository.FindByID(ctx, id)
}

func (r *recordingRepo) FindByPerformer(ctx context.Context, performerID int64) ([]model.Concert, error) {
	r.log.record("store.findByPerformer(%d)", performerID)
	return r.ConcertRepository.FindByPerformer(ctx, performerID)
}

func (r *recordingRepo) Save(ctx context.Context, concert *model.Concert) error {
	r.log.record("store.save(%d)", concert.ID)
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.ConcertRepository.Save(ctx, concert)
}

func (r *recordingRepo) Delete(ctx context.Context, concert *model.Concert) error {
	r.log.record("store.delete(%d)", concert.ID)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.ConcertRepository.Delete(ctx, concert)
}

type fakePerformers struct {
	log         *journal
	known       map[int64]bool
	unreachable bool
}

func (f *fakePerformers) CheckPerformer(ctx context.Context, performerID int64) (service.PerformerStatus, error) {
	f.log.record("performers.check(%d)", performerID)
	if f.unreachable {
		return service.PerformerUnreachable, errors.New("connection refused")
	}
	if f.known[performerID] {
		return service.PerformerValid, nil
	}
	return service.PerformerInvalid, nil
}

type fakeReviews struct {
	log         *journal
	byConcert   map[int64]int
	byPerformer map[int64][]string
	failDelete  map[string]bool
	listErr     error
	hasErr      error
}

func (f *fakeReviews) HasReviews(ctx context.Context, concertID int64) (bool, error) {
	f.log.record("reviews.has(%d)", concertID)
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.byConcert[concertID] > 0, nil
}

func (f *fakeReviews) ListReviewIDsForPerformer(ctx context.Context, performerID int64) ([]string, error) {
	f.log.record("reviews.list(%d)", performerID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := f.byPerformer[performerID]
	if ids == nil {
		return []string{}, nil
	}
	return ids, nil
}

func (f *fakeReviews) DeleteReview(ctx context.Context, reviewID string) error {
	f.log.record("reviews.delete(%s)", reviewID)
	if f.failDelete[reviewID] {
		return fmt.Errorf("%w: status 500", model.ErrReviewServiceUnavailable)
	}
	return nil
}

type fakePublisher struct {
	published []model.ReviewCleanupRequest
	err       error
}

func (p *fakePublisher) PublishReviewCleanup(ctx context.Context, requests ...model.ReviewCleanupRequest) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, requests...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fixture struct {
	log        *journal
	repo       *recordingRepo
	performers *fakePerformers
	reviews    *fakeReviews
	orch       *ConcertOrchestrator
}

var fixedNow = time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	log := &journal{}
	f := &fixture{
		log:        log,
		repo:       &recordingRepo{ConcertRepository: memory.NewConcertRepository(), log: log},
		performers: &fakePerformers{log: log, known: map[int64]bool{7: true, 9: true}},
		reviews: &fakeReviews{
			log:         log,
			byConcert:   map[int64]int{},
			byPerformer: map[int64][]string{},
			failDelete:  map[string]bool{},
		},
	}
	f.orch = NewConcertOrchestrator(f.repo, f.performers, f.reviews).
		WithClock(func() time.Time { return fixedNow })
	return f
}

func mustDay(s string) time.Time {
	d, err := model.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mainStageRequest() model.CreateConcertRequest {
	return model.CreateConcertRequest{
		PerformerID: 7,
		Day:         mustDay("2024-01-01"),
		Stage:       "Main",
		BeginTime:   model.TimeOfDay{Hour: 18},
		EndTime:     model.TimeOfDay{Hour: 20},
	}
}
