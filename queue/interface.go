package queue

import (
	"context"

	"github.com/arunvm123/concerttrack/model"
)

// ReviewCleanupPublisher hands failed review deletions to the retry worker.
type ReviewCleanupPublisher interface {
	PublishReviewCleanup(ctx context.Context, requests ...model.ReviewCleanupRequest) error
	Close() error
}
