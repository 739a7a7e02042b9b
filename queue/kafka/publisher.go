package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/model"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer MessageWriter
}

// NewWriter builds the writer for the review cleanup topic.
func NewWriter(cfg *config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.ReviewCleanupTopic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// PublishReviewCleanup writes one message per request, keyed by review id so
// retries of the same review stay on one partition.
func (p *Publisher) PublishReviewCleanup(ctx context.Context, requests ...model.ReviewCleanupRequest) error {
	if len(requests) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(requests))
	for _, req := range requests {
		value, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to encode cleanup request for review %s: %w", req.ReviewID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(req.ReviewID),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d cleanup request(s): %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
