package repository

import (
	"context"
	"time"

	"github.com/arunvm123/concerttrack/model"
)

// ConcertRepository is the persistence boundary for concerts. It holds no
// validation logic. Every list is ordered by concert ID.
type ConcertRepository interface {
	FindAll(ctx context.Context) ([]model.Concert, error)
	// FindByStage matches a case-insensitive substring of the stage name.
	FindByStage(ctx context.Context, stage string) ([]model.Concert, error)
	// FindByID returns model.ErrConcertNotFound when no row exists.
	FindByID(ctx context.Context, id int64) (*model.Concert, error)
	FindByPerformer(ctx context.Context, performerID int64) ([]model.Concert, error)
	// FindBefore returns concerts with day strictly before date.
	FindBefore(ctx context.Context, date time.Time) ([]model.Concert, error)
	// FindAfter returns concerts with day strictly after date.
	FindAfter(ctx context.Context, date time.Time) ([]model.Concert, error)

	// Save inserts when concert.ID is zero and assigns the ID, otherwise updates.
	Save(ctx context.Context, concert *model.Concert) error
	Delete(ctx context.Context, concert *model.Concert) error

	// Health check
	Ping(ctx context.Context) error
}
