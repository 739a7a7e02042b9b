package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/logger"
	"github.com/arunvm123/concerttrack/model"
	"github.com/arunvm123/concerttrack/queue"
	"github.com/arunvm123/concerttrack/service"
	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 30 * time.Second
	publishTimeout  = 10 * time.Second
)

// ErrAttemptsExhausted is returned for a deletion that failed on its last allowed attempt.
var ErrAttemptsExhausted = errors.New("review cleanup attempts exhausted")

// MessageReader is the part of *kafka.Reader the processor needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// CascadeProcessor retries review deletions that failed during a concert
// cascade. Each message is handled on an ants pool; a failed deletion is
// republished with the next attempt number until max attempts is reached.
type CascadeProcessor struct {
	reviews     service.ReviewService
	publisher   queue.ReviewCleanupPublisher
	consumer    MessageReader
	pool        *ants.Pool
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time

	// Metrics
	processedCount int64
	retriedCount   int64
	abandonedCount int64
	handedOffCount int64
}

func NewCascadeProcessor(
	reviews service.ReviewService,
	publisher queue.ReviewCleanupPublisher,
	consumer MessageReader,
	cfg config.Worker,
) (*CascadeProcessor, error) {
	pool, err := ants.NewPool(cfg.MaxWorkers,
		ants.WithPanicHandler(func(p interface{}) {
			logger.Error("Cascade worker panic recovered",
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &CascadeProcessor{
		reviews:     reviews,
		publisher:   publisher,
		consumer:    consumer,
		pool:        pool,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.Delay(),
		now:         time.Now,
	}, nil
}

// Start reads cleanup requests until ctx is cancelled.
func (p *CascadeProcessor) Start(ctx context.Context) error {
	logger.Info("Starting review cleanup processor",
		zap.Int("workers", p.pool.Cap()),
		zap.Int("max_attempts", p.maxAttempts),
	)

	go p.reportMetrics(ctx)

	for {
		msg, err := p.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Review cleanup processor shutting down")
				p.shutdown()
				return ctx.Err()
			}
			logger.Warn("Error reading cleanup message", zap.Error(err))
			continue
		}

		if err := p.pool.Submit(func() {
			if err := p.processMessage(ctx, msg); err != nil {
				logger.Warn("Review cleanup failed",
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
		}); err != nil {
			logger.Error("Failed to dispatch cleanup message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (p *CascadeProcessor) shutdown() {
	if err := p.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Worker pool shutdown timeout", zap.Error(err))
		return
	}
	logger.Info("All cleanup workers finished gracefully")
}

func (p *CascadeProcessor) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Review cleanup processor metrics",
				zap.Int64("processed", atomic.LoadInt64(&p.processedCount)),
				zap.Int64("retried", atomic.LoadInt64(&p.retriedCount)),
				zap.Int64("abandoned", atomic.LoadInt64(&p.abandonedCount)),
				zap.Int64("handed_off", atomic.LoadInt64(&p.handedOffCount)),
				zap.Int("running", p.pool.Running()),
			)
		}
	}
}

// processMessage deletes the review of one cleanup request and schedules the
// next attempt when that fails. The reader has already committed the offset,
// so a request interrupted by shutdown is republished unchanged.
func (p *CascadeProcessor) processMessage(ctx context.Context, msg kafka.Message) error {
	defer atomic.AddInt64(&p.processedCount, 1)

	var req model.ReviewCleanupRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup request: %w", err)
	}

	if err := p.waitForRetry(ctx, req); err != nil {
		return p.handOff(ctx, req, err)
	}

	log := logger.With(
		zap.String("review_id", req.ReviewID),
		zap.Int64("concert_id", req.ConcertID),
		zap.Int("attempt", req.Attempt),
	)

	err := p.reviews.DeleteReview(ctx, req.ReviewID)
	if err == nil {
		log.Info("Review deleted on retry")
		return nil
	}

	if ctx.Err() != nil {
		return p.handOff(ctx, req, err)
	}

	if req.Attempt >= p.maxAttempts {
		atomic.AddInt64(&p.abandonedCount, 1)
		log.Error("Giving up on review deletion", zap.Error(err))
		return fmt.Errorf("%w: review %s: %v", ErrAttemptsExhausted, req.ReviewID, err)
	}

	next := req.NextAttempt(err, p.now().UTC())
	if pubErr := p.publish(ctx, next); pubErr != nil {
		return fmt.Errorf("failed to requeue review %s: %w", req.ReviewID, pubErr)
	}
	atomic.AddInt64(&p.retriedCount, 1)
	log.Warn("Review deletion requeued", zap.Int("next_attempt", next.Attempt), zap.Error(err))
	return nil
}

// handOff puts a request that shutdown interrupted back on the topic with its
// attempt number unchanged.
func (p *CascadeProcessor) handOff(ctx context.Context, req model.ReviewCleanupRequest, cause error) error {
	if err := p.publish(ctx, req); err != nil {
		logger.Error("Lost review cleanup request on shutdown",
			zap.String("review_id", req.ReviewID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return fmt.Errorf("failed to hand off review %s: %w", req.ReviewID, err)
	}
	atomic.AddInt64(&p.handedOffCount, 1)
	logger.Info("Review cleanup handed back to queue",
		zap.String("review_id", req.ReviewID),
		zap.Int("attempt", req.Attempt),
		zap.NamedError("cause", cause),
	)
	return nil
}

// publish outlives cancellation of ctx so requeues still land during shutdown.
func (p *CascadeProcessor) publish(ctx context.Context, req model.ReviewCleanupRequest) error {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return p.publisher.PublishReviewCleanup(pubCtx, req)
}

// waitForRetry delays a redelivered request until retryDelay*attempt has
// passed since its last failure.
func (p *CascadeProcessor) waitForRetry(ctx context.Context, req model.ReviewCleanupRequest) error {
	if p.retryDelay <= 0 || req.FailedAt.IsZero() {
		return nil
	}

	wait := req.FailedAt.Add(p.retryDelay * time.Duration(req.Attempt)).Sub(p.now())
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
