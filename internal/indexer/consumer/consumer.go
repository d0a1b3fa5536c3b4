// Package consumer reads link ingest events from Kafka and adds them to the
// link catalog.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/links"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/resilience"
)

// Outcome labels for ingest_messages_total.
const (
	OutcomeIndexed   = "indexed"
	OutcomeBuffered  = "buffered"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// LinkAdder is the part of the link service the consumer drives.
type LinkAdder interface {
	AddLink(ctx context.Context, url, description string, tags []string) (links.Link, error)
	Commit(ctx context.Context) (uint64, int, error)
}

// IngestConsumer wraps a Kafka consumer to feed the link catalog.
type IngestConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IngestConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IngestConsumer {
	return &IngestConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IngestConsumer) Start(ctx context.Context) error {
	ic.logger.Info("ingest consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that adds every ingest event
// as a link. Malformed and invalid events are skipped so they cannot wedge
// the partition. Transient failures are retried; once the link is in the
// catalog only the commit is retried, so a redelivery never duplicates it.
// m may be nil.
func HandleMessage(svc LinkAdder, m *metrics.Metrics, retry resilience.RetryConfig) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	observe := func(outcome string) {
		if m != nil {
			m.IngestMessagesTotal.WithLabelValues(outcome).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			observe(OutcomeMalformed)
			return nil
		}

		var link links.Link
		err = resilience.Retry(ctx, "ingest-add-link", retry, func(ctx context.Context) error {
			if link.ID != "" {
				_, _, err := svc.Commit(ctx)
				return err
			}
			added, err := svc.AddLink(ctx, event.URL, event.Description, event.Tags)
			if added.ID != "" {
				link = added
			}
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return resilience.Permanent(err)
			}
			return err
		})

		switch {
		case err == nil:
			logger.Debug("link ingested", "id", link.ID, "url", link.URL)
			observe(OutcomeIndexed)
			return nil
		case errors.Is(err, apperrors.ErrInvalidInput):
			logger.Warn("rejected ingest event", "url", event.URL, "error", err)
			observe(OutcomeRejected)
			return nil
		case link.ID != "":
			logger.Warn("ingested link not yet committed", "id", link.ID, "error", err)
			observe(OutcomeBuffered)
			return nil
		default:
			observe(OutcomeFailed)
			return err
		}
	}
}

// DefaultRetry is the backoff used for ingest events.
var DefaultRetry = resilience.RetryConfig{
	MaxAttempts:  4,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}
