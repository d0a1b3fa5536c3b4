package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/kafka"
)

// Publisher delivers events. *kafka.Producer and *Aggregator both qualify.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events so tracking never blocks a request, and
// publishes them in batches from one background goroutine.
type Collector struct {
	publisher     Publisher
	eventCh       chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	logger        *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan kafka.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately; Close stops it.
func (c *Collector) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(context.WithoutCancel(ctx))
		c.logger.Info("analytics collector started",
			"buffer_size", cap(c.eventCh),
			"batch_size", c.batchSize,
		)
	})
}

// Track enqueues an event, dropping it when the buffer is full.
func (c *Collector) Track(key string, event any) {
	select {
	case c.eventCh <- kafka.Event{Key: key, Value: event}:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped is the number of events discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events, publishes what is buffered and waits for
// the loop to exit. Track must not be called afterwards.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.eventCh)
	})
	c.startOnce.Do(func() { close(c.done) })
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		}
		batch = make([]kafka.Event, 0, c.batchSize)
	}
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
