// Package publisher queues validated links on the ingest topic.
package publisher

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/kafka"
	"github.com/cespare/xxhash/v2"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher turns ingest requests into Kafka events.
type Publisher struct {
	producer EventPublisher
	logger   *slog.Logger
}

func New(producer EventPublisher) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Ingest publishes every link of req in one batch. Events are keyed by a
// hash of the URL so repeats of a URL stay on one partition, in order.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	events := make([]kafka.Event, len(req.Links))
	for i, l := range req.Links {
		l.URL = strings.TrimSpace(l.URL)
		events[i] = kafka.Event{Key: partitionKey(l.URL), Value: l}
	}
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, err, "queueing %d links", len(events))
	}
	p.logger.Debug("links queued", "count", len(events))
	return &ingestion.IngestResponse{Accepted: len(events), Status: "QUEUED"}, nil
}

func partitionKey(url string) string {
	return strconv.FormatUint(xxhash.Sum64String(url), 16)
}
