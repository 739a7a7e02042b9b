// Package orchestrator keeps concerts consistent with the performer registry
// and the review store.
//
// Every mutation re-reads the stored concert, runs its remote guards
// sequentially and writes at most once. Nothing is cached between calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arunvm123/concerttrack/logger"
	"github.com/arunvm123/concerttrack/model"
	"github.com/arunvm123/concerttrack/queue"
	"github.com/arunvm123/concerttrack/repository"
	"github.com/arunvm123/concerttrack/service"
	"go.uber.org/zap"
)

type ConcertOrchestrator struct {
	repo       repository.ConcertRepository
	performers service.PerformerService
	reviews    service.ReviewService
	cleanup    queue.ReviewCleanupPublisher
	now        func() time.Time
}

func NewConcertOrchestrator(
	repo repository.ConcertRepository,
	performers service.PerformerService,
	reviews service.ReviewService,
) *ConcertOrchestrator {
	return &ConcertOrchestrator{
		repo:       repo,
		performers: performers,
		reviews:    reviews,
		now:        time.Now,
	}
}

// WithCleanupPublisher requeues failed review deletions of a cascade.
func (o *ConcertOrchestrator) WithCleanupPublisher(p queue.ReviewCleanupPublisher) *ConcertOrchestrator {
	o.cleanup = p
	return o
}

func (o *ConcertOrchestrator) WithClock(now func() time.Time) *ConcertOrchestrator {
	o.now = now
	return o
}

// Create validates the request and the performer, then persists the concert.
func (o *ConcertOrchestrator) Create(ctx context.Context, req model.CreateConcertRequest) (*model.Concert, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := o.ensurePerformer(ctx, req.PerformerID); err != nil {
		return nil, err
	}

	concert := &model.Concert{
		PerformerID: req.PerformerID,
		Day:         model.NormalizeDay(req.Day),
		Stage:       req.Stage,
		BeginTime:   req.BeginTime,
		EndTime:     req.EndTime,
	}
	if err := o.repo.Save(ctx, concert); err != nil {
		return nil, err
	}

	logger.Info("Concert created",
		zap.Int64("concert_id", concert.ID),
		zap.Int64("performer_id", concert.PerformerID),
	)
	return concert, nil
}

// Update applies the present fields of req to the stored concert. A change
// of performer requires a known performer and a concert without reviews.
// All guards run before the single save.
func (o *ConcertOrchestrator) Update(ctx context.Context, req model.UpdateConcertRequest) (*model.Concert, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := o.repo.FindByID(ctx, req.ConcertID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if req.Day != nil {
		updated.Day = model.NormalizeDay(*req.Day)
	}
	if req.Stage != nil {
		updated.Stage = *req.Stage
	}
	if req.BeginTime != nil {
		updated.BeginTime = *req.BeginTime
	}
	if req.EndTime != nil {
		updated.EndTime = *req.EndTime
	}

	if req.PerformerID != nil && *req.PerformerID > 0 && *req.PerformerID != current.PerformerID {
		newPerformer := *req.PerformerID

		// The registry check is cheaper and must not trigger a review lookup when it fails.
		if err := o.ensurePerformer(ctx, newPerformer); err != nil {
			return nil, err
		}

		hasReviews, err := o.reviews.HasReviews(ctx, current.ID)
		if err != nil {
			return nil, wrapReviewError(err)
		}
		if hasReviews {
			logger.Info("Performer change rejected, concert has reviews",
				zap.Int64("concert_id", current.ID),
				zap.Int64("performer_id", current.PerformerID),
				zap.Int64("requested_performer_id", newPerformer),
			)
			return nil, fmt.Errorf("%w: concert %d", model.ErrConcertHasReviews, current.ID)
		}
		updated.PerformerID = newPerformer
	}

	if err := o.repo.Save(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes every review of the concert's performer, one at a time and
// in the order the review store lists them, and then the concert itself.
// Review deletions that fail do not stop the cascade. They are reported in
// the returned CascadeReport, requeued for the retry worker when a publisher
// is configured, and surfaced as a *model.PartialCascadeError.
func (o *ConcertOrchestrator) Delete(ctx context.Context, id int64) (*model.CascadeReport, error) {
	concert, err := o.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	reviewIDs, err := o.reviews.ListReviewIDsForPerformer(ctx, concert.PerformerID)
	if err != nil {
		return nil, wrapReviewError(err)
	}

	report := &model.CascadeReport{
		ConcertID:      concert.ID,
		PerformerID:    concert.PerformerID,
		ReviewsFound:   len(reviewIDs),
		ReviewsDeleted: make([]string, 0, len(reviewIDs)),
	}

	for _, reviewID := range reviewIDs {
		if err := o.reviews.DeleteReview(ctx, reviewID); err != nil {
			logger.Warn("Review deletion failed during cascade",
				zap.Int64("concert_id", concert.ID),
				zap.String("review_id", reviewID),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, model.ReviewDeletionFailure{
				ReviewID: reviewID,
				Error:    err.Error(),
			})
			continue
		}
		report.ReviewsDeleted = append(report.ReviewsDeleted, reviewID)
	}

	deleteErr := o.repo.Delete(ctx, concert)
	if errors.Is(deleteErr, model.ErrConcertNotFound) {
		// A concurrent delete removed the row after the cascade ran.
		logger.Warn("Concert already deleted after review cascade", zap.Int64("concert_id", concert.ID))
		deleteErr = nil
	}

	if !report.Complete() {
		report.Requeued = o.requeue(ctx, concert, report.Failures)
	}

	if deleteErr != nil {
		return report, fmt.Errorf("failed to delete concert %d after review cascade: %w", concert.ID, deleteErr)
	}

	logger.Info("Concert deleted",
		zap.Int64("concert_id", concert.ID),
		zap.Int64("performer_id", concert.PerformerID),
		zap.Int("reviews_found", report.ReviewsFound),
		zap.Int("reviews_deleted", len(report.ReviewsDeleted)),
		zap.Int("reviews_failed", len(report.Failures)),
	)

	if !report.Complete() {
		return report, &model.PartialCascadeError{ConcertID: concert.ID, Failures: report.Failures}
	}
	return report, nil
}

func (o *ConcertOrchestrator) requeue(ctx context.Context, concert *model.Concert, failures []model.ReviewDeletionFailure) int {
	if o.cleanup == nil {
		return 0
	}

	failedAt := o.now().UTC()
	requests := make([]model.ReviewCleanupRequest, 0, len(failures))
	for _, f := range failures {
		requests = append(requests, model.ReviewCleanupRequest{
			ReviewID:    f.ReviewID,
			ConcertID:   concert.ID,
			PerformerID: concert.PerformerID,
			Attempt:     1,
			LastError:   f.Error,
			FailedAt:    failedAt,
		})
	}

	if err := o.cleanup.PublishReviewCleanup(ctx, requests...); err != nil {
		logger.Error("Failed to requeue review deletions",
			zap.Int64("concert_id", concert.ID),
			zap.Int("count", len(requests)),
			zap.Error(err),
		)
		return 0
	}
	return len(requests)
}

func (o *ConcertOrchestrator) GetAll(ctx context.Context) ([]model.Concert, error) {
	return o.repo.FindAll(ctx)
}

func (o *ConcertOrchestrator) GetByStage(ctx context.Context, stage string) ([]model.Concert, error) {
	return o.repo.FindByStage(ctx, stage)
}

func (o *ConcertOrchestrator) GetByID(ctx context.Context, id int64) (*model.Concert, error) {
	return o.repo.FindByID(ctx, id)
}

func (o *ConcertOrchestrator) GetBefore(ctx context.Context, date time.Time) ([]model.Concert, error) {
	return o.repo.FindBefore(ctx, date)
}

func (o *ConcertOrchestrator) GetAfter(ctx context.Context, date time.Time) ([]model.Concert, error) {
	return o.repo.FindAfter(ctx, date)
}

// GetByPerformer checks the performer with the registry before scanning.
func (o *ConcertOrchestrator) GetByPerformer(ctx context.Context, performerID int64) ([]model.Concert, error) {
	if err := o.ensurePerformer(ctx, performerID); err != nil {
		return nil, err
	}
	return o.repo.FindByPerformer(ctx, performerID)
}

// GetPast returns concerts dated before today.
func (o *ConcertOrchestrator) GetPast(ctx context.Context) ([]model.Concert, error) {
	return o.repo.FindBefore(ctx, o.today())
}

// GetUpcoming returns concerts dated after today.
func (o *ConcertOrchestrator) GetUpcoming(ctx context.Context) ([]model.Concert, error) {
	return o.repo.FindAfter(ctx, o.today())
}

// CheckReviewEligibility allows reviews of concerts dated today or earlier.
func (o *ConcertOrchestrator) CheckReviewEligibility(ctx context.Context, id int64) (*model.ReviewEligibility, error) {
	concert, err := o.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if model.NormalizeDay(concert.Day).After(o.today()) {
		return &model.ReviewEligibility{Eligible: false}, nil
	}
	return &model.ReviewEligibility{Eligible: true, PerformerID: concert.PerformerID}, nil
}

// CanDeletePerformer reports whether no concert references the performer.
func (o *ConcertOrchestrator) CanDeletePerformer(ctx context.Context, performerID int64) (bool, error) {
	if err := o.ensurePerformer(ctx, performerID); err != nil {
		return false, err
	}

	concerts, err := o.repo.FindByPerformer(ctx, performerID)
	if err != nil {
		return false, err
	}
	return len(concerts) == 0, nil
}

func (o *ConcertOrchestrator) ensurePerformer(ctx context.Context, performerID int64) error {
	status, err := o.performers.CheckPerformer(ctx, performerID)
	switch status {
	case service.PerformerValid:
		return nil
	case service.PerformerInvalid:
		return fmt.Errorf("%w: performer %d", model.ErrInvalidPerformer, performerID)
	default:
		logger.Warn("Performer registry unreachable",
			zap.Int64("performer_id", performerID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: performer %d: %v", model.ErrPerformerRegistryUnavailable, performerID, err)
	}
}

// today is the UTC calendar date of the clock.
func (o *ConcertOrchestrator) today() time.Time {
	return model.NormalizeDay(o.now().UTC())
}

func wrapReviewError(err error) error {
	if errors.Is(err, model.ErrReviewServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrReviewServiceUnavailable, err)
}
