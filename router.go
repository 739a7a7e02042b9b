package main

import (
	"context"
	"time"

	"github.com/arunvm123/concerttrack/cache"
	redisCache "github.com/arunvm123/concerttrack/cache/redis"
	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/logger"
	"github.com/arunvm123/concerttrack/orchestrator"
	kafkaQueue "github.com/arunvm123/concerttrack/queue/kafka"
	"github.com/arunvm123/concerttrack/repository"
	"github.com/arunvm123/concerttrack/repository/memory"
	"github.com/arunvm123/concerttrack/repository/postgres"
	httpservice "github.com/arunvm123/concerttrack/service/http"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter wires every dependency from cfg. The returned func releases
// the cache and queue connections.
func SetupRouter(cfg *config.Config) (*gin.Engine, func()) {
	var closers []func() error

	// Initialize repository
	var repo repository.ConcertRepository
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory concert store, data is lost on restart")
		repo = memory.NewConcertRepository()
	} else {
		pgRepo, err := postgres.NewConcertRepository(&cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize repository", zap.Error(err))
		}
		repo = pgRepo
	}

	// Initialize cache
	var concertCache cache.ConcertCache = cache.NoopCache{}
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := redisCache.NewRedisConcertCache(ctx, &cfg.Redis)
		cancel()
		if err != nil {
			logger.Fatal("Failed to initialize cache", zap.Error(err))
		}
		concertCache = rc
		closers = append(closers, rc.Close)
	}

	// Initialize remote service clients with connection pooling
	performers := httpservice.NewHTTPPerformerService(&cfg.PerformerService)
	reviews := httpservice.NewHTTPReviewService(&cfg.ReviewService)

	concerts := orchestrator.NewConcertOrchestrator(repo, performers, reviews)

	// Failed cascade deletions are handed to the cleanup worker when kafka is on
	if cfg.Kafka.Enabled {
		publisher := kafkaQueue.NewPublisher(kafkaQueue.NewWriter(&cfg.Kafka))
		concerts.WithCleanupPublisher(publisher)
		closers = append(closers, publisher.Close)
	}

	concertHandler := NewConcertHandler(
		concerts,
		concertCache,
		repo,
		time.Duration(cfg.Redis.ConcertTTL)*time.Second,
		time.Duration(cfg.Redis.ListTTL)*time.Second,
	)

	cleanup := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("Failed to close connection", zap.Error(err))
			}
		}
	}

	return NewRouter(concertHandler), cleanup
}

// NewRouter registers the concert routes on a fresh engine.
func NewRouter(concertHandler *ConcertHandler) *gin.Engine {
	r := gin.New()

	// Add middleware
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", concertHandler.HealthCheck)

	// API routes
	api := r.Group("/api")
	concerts := api.Group("/concerts")

	concerts.GET("", concertHandler.ListConcerts)
	concerts.POST("", concertHandler.CreateConcert)

	// Queries
	concerts.GET("/by-stage", concertHandler.ListByStage)
	concerts.GET("/by-performer", concertHandler.ListByPerformer)
	concerts.GET("/past", concertHandler.ListPast)
	concerts.GET("/future", concertHandler.ListUpcoming)
	concerts.GET("/before", concertHandler.ListBefore)
	concerts.GET("/after", concertHandler.ListAfter)

	// Checks called by the review store and the performer registry
	concerts.GET("/valid-review", concertHandler.ValidReview)
	concerts.GET("/check-delete-performer", concertHandler.CheckDeletePerformer)

	concerts.GET("/:id", concertHandler.GetConcert)
	concerts.PUT("/:id", concertHandler.UpdateConcert)
	concerts.DELETE("/:id", concertHandler.DeleteConcert)

	return r
}
