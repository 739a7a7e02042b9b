package cache

import (
	"context"
	"time"

	"github.com/arunvm123/concerttrack/model"
)

// ConcertCache holds read-side copies of concerts and concert lists.
// A miss returns nil with a nil error.
type ConcertCache interface {
	// Concert operations
	GetConcert(ctx context.Context, concertID int64) (*model.Concert, error)
	SetConcert(ctx context.Context, concert *model.Concert, ttl time.Duration) error
	InvalidateConcert(ctx context.Context, concertID int64) error

	// Concert list operations
	GetConcertList(ctx context.Context, listKey string) ([]model.Concert, error)
	SetConcertList(ctx context.Context, listKey string, concerts []model.Concert, ttl time.Duration) error
	InvalidateConcertLists(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error
}

// NoopCache is used when redis is disabled. Every read misses.
type NoopCache struct{}

func (NoopCache) GetConcert(context.Context, int64) (*model.Concert, error) { return nil, nil }

func (NoopCache) SetConcert(context.Context, *model.Concert, time.Duration) error { return nil }

func (NoopCache) InvalidateConcert(context.Context, int64) error { return nil }

func (NoopCache) GetConcertList(context.Context, string) ([]model.Concert, error) { return nil, nil }

func (NoopCache) SetConcertList(context.Context, string, []model.Concert, time.Duration) error {
	return nil
}

func (NoopCache) InvalidateConcertLists(context.Context) error { return nil }

func (NoopCache) Ping(context.Context) error { return nil }
