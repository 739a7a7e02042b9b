package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arunvm123/concerttrack/model"
)

// ConcertRepository keeps concerts in process memory. Used for the
// memory database driver and in tests.
type ConcertRepository struct {
	mu       sync.RWMutex
	concerts map[int64]model.Concert
	nextID   int64
}

func NewConcertRepository() *ConcertRepository {
	return &ConcertRepository{
		concerts: make(map[int64]model.Concert),
		nextID:   1,
	}
}

func (r *ConcertRepository) FindAll(ctx context.Context) ([]model.Concert, error) {
	return r.filter(func(model.Concert) bool { return true }), nil
}

func (r *ConcertRepository) FindByStage(ctx context.Context, stage string) ([]model.Concert, error) {
	needle := strings.ToLower(stage)
	return r.filter(func(c model.Concert) bool {
		return strings.Contains(strings.ToLower(c.Stage), needle)
	}), nil
}

func (r *ConcertRepository) FindByID(ctx context.Context, id int64) (*model.Concert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	concert, ok := r.concerts[id]
	if !ok {
		return nil, model.ErrConcertNotFound
	}
	return &concert, nil
}

func (r *ConcertRepository) FindByPerformer(ctx context.Context, performerID int64) ([]model.Concert, error) {
	return r.filter(func(c model.Concert) bool { return c.PerformerID == performerID }), nil
}

func (r *ConcertRepository) FindBefore(ctx context.Context, date time.Time) ([]model.Concert, error) {
	day := model.NormalizeDay(date)
	return r.filter(func(c model.Concert) bool { return c.Day.Before(day) }), nil
}

func (r *ConcertRepository) FindAfter(ctx context.Context, date time.Time) ([]model.Concert, error) {
	day := model.NormalizeDay(date)
	return r.filter(func(c model.Concert) bool { return c.Day.After(day) }), nil
}

func (r *ConcertRepository) Save(ctx context.Context, concert *model.Concert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	concert.Day = model.NormalizeDay(concert.Day)
	if concert.ID == 0 {
		concert.ID = r.nextID
		r.nextID++
		concert.CreatedAt = now
	}
	concert.UpdatedAt = now
	r.concerts[concert.ID] = *concert
	return nil
}

func (r *ConcertRepository) Delete(ctx context.Context, concert *model.Concert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.concerts[concert.ID]; !ok {
		return model.ErrConcertNotFound
	}
	delete(r.concerts, concert.ID)
	return nil
}

func (r *ConcertRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *ConcertRepository) filter(keep func(model.Concert) bool) []model.Concert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.Concert, 0)
	for _, c := range r.concerts {
		if keep(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
