// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON; the consumer
// hands raw message bodies to a MessageHandler and commits offsets only for
// messages the handler accepted.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is invoked for each message. Returning an error leaves
// the offset uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from one topic and dispatches them to a handler.
type Consumer struct {
	reader       MessageReader
	handler      MessageHandler
	logger       *slog.Logger
	fetchBackoff time.Duration
}

// NewConsumer creates a group consumer for topic.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return NewConsumerWithReader(r, topic, handler)
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(r MessageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:       r,
		handler:      handler,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic),
		fetchBackoff: time.Second,
	}
}

// Start runs the consume loop until ctx is cancelled, then closes the
// reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(c.fetchBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
