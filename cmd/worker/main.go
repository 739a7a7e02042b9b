package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/logger"
	kafkaQueue "github.com/arunvm123/concerttrack/queue/kafka"
	"github.com/arunvm123/concerttrack/service/http"
	"github.com/arunvm123/concerttrack/worker"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load configuration (fallback to env variables if config file not found)
	cfg, err := config.Initialise("config.yaml", false)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting Review Cleanup Worker")

	// Initialize Review Service client
	reviewService := http.NewHTTPReviewService(&cfg.ReviewService)

	// Failed attempts go back onto the same topic
	publisher := kafkaQueue.NewPublisher(kafkaQueue.NewWriter(&cfg.Kafka))
	defer publisher.Close()

	// Setup Kafka consumer
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ReviewCleanupTopic,
		GroupID: cfg.Kafka.ConsumerGroup,
	})
	defer consumer.Close()

	processor, err := worker.NewCascadeProcessor(reviewService, publisher, consumer, cfg.Worker)
	if err != nil {
		logger.Fatal("Failed to create cleanup processor", zap.Error(err))
	}

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal, stopping worker", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker error", zap.Error(err))
	}

	logger.Info("Worker stopped gracefully")
}
