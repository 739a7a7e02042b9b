package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/logger"
	"github.com/arunvm123/concerttrack/model"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type PostgresConcertRepository struct {
	db *gorm.DB
}

func NewConcertRepository(cfg *config.Database) (*PostgresConcertRepository, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	if err := db.AutoMigrate(&model.Concert{}); err != nil {
		return nil, fmt.Errorf("failed to migrate concerts table: %w", err)
	}

	logger.Info("Database connected and concert table migrated",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DatabaseName),
	)

	return NewConcertRepositoryFromDB(db), nil
}

// NewConcertRepositoryFromDB wraps an already opened gorm handle.
func NewConcertRepositoryFromDB(db *gorm.DB) *PostgresConcertRepository {
	return &PostgresConcertRepository{db: db}
}

func (r *PostgresConcertRepository) FindAll(ctx context.Context) ([]model.Concert, error) {
	var concerts []model.Concert
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&concerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list concerts: %w", err)
	}
	return concerts, nil
}

func (r *PostgresConcertRepository) FindByStage(ctx context.Context, stage string) ([]model.Concert, error) {
	var concerts []model.Concert
	if err := r.db.WithContext(ctx).
		Where("stage ILIKE ?", "%"+escapeLike(stage)+"%").
		Order("id ASC").
		Find(&concerts).Error; err != nil {
		return nil, fmt.Errorf("failed to find concerts by stage: %w", err)
	}
	return concerts, nil
}

func (r *PostgresConcertRepository) FindByID(ctx context.Context, id int64) (*model.Concert, error) {
	var concert model.Concert
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&concert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrConcertNotFound
		}
		return nil, fmt.Errorf("failed to get concert %d: %w", id, err)
	}
	return &concert, nil
}

func (r *PostgresConcertRepository) FindByPerformer(ctx context.Context, performerID int64) ([]model.Concert, error) {
	var concerts []model.Concert
	if err := r.db.WithContext(ctx).
		Where("performer_id = ?", performerID).
		Order("id ASC").
		Find(&concerts).Error; err != nil {
		return nil, fmt.Errorf("failed to find concerts by performer: %w", err)
	}
	return concerts, nil
}

func (r *PostgresConcertRepository) FindBefore(ctx context.Context, date time.Time) ([]model.Concert, error) {
	var concerts []model.Concert
	if err := r.db.WithContext(ctx).
		Where("day < ?", model.NormalizeDay(date)).
		Order("id ASC").
		Find(&concerts).Error; err != nil {
		return nil, fmt.Errorf("failed to find concerts before %s: %w", date.Format(model.DateLayout), err)
	}
	return concerts, nil
}

func (r *PostgresConcertRepository) FindAfter(ctx context.Context, date time.Time) ([]model.Concert, error) {
	var concerts []model.Concert
	if err := r.db.WithContext(ctx).
		Where("day > ?", model.NormalizeDay(date)).
		Order("id ASC").
		Find(&concerts).Error; err != nil {
		return nil, fmt.Errorf("failed to find concerts after %s: %w", date.Format(model.DateLayout), err)
	}
	return concerts, nil
}

func (r *PostgresConcertRepository) Save(ctx context.Context, concert *model.Concert) error {
	concert.Day = model.NormalizeDay(concert.Day)

	if concert.ID == 0 {
		if err := r.db.WithContext(ctx).Create(concert).Error; err != nil {
			return fmt.Errorf("failed to create concert: %w", err)
		}
		return nil
	}

	if err := r.db.WithContext(ctx).Save(concert).Error; err != nil {
		return fmt.Errorf("failed to update concert %d: %w", concert.ID, err)
	}
	return nil
}

func (r *PostgresConcertRepository) Delete(ctx context.Context, concert *model.Concert) error {
	result := r.db.WithContext(ctx).Delete(&model.Concert{}, concert.ID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete concert %d: %w", concert.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrConcertNotFound
	}
	return nil
}

func (r *PostgresConcertRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes the search text match literally inside a LIKE pattern.
// Postgres uses backslash as the default LIKE escape character.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
