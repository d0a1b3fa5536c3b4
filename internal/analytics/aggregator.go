package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/kafka"
)

const maxLatencySamples = 10000

// AggregatedStats is a point-in-time summary of tracked events.
type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	LinksAdded        int64        `json:"links_added"`
	LinksDeleted      int64        `json:"links_deleted"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	CapturedAt        time.Time    `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running totals. Latencies are kept in a
// ring of the most recent samples.
type Aggregator struct {
	mu                sync.Mutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	linksAdded        int64
	linksDeleted      int64
	latencies         []int64
	nextLatency       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// PublishBatch records events directly, letting a Collector feed the
// aggregator when Kafka is disabled.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		switch ev := e.Value.(type) {
		case SearchEvent:
			a.RecordSearch(ev)
		case LinkEvent:
			a.RecordLink(ev)
		default:
			return fmt.Errorf("unsupported analytics event %T", e.Value)
		}
	}
	return nil
}

// HandleMessage returns a Kafka handler that decodes and records events.
// Undecodable messages are logged and skipped so they are not redelivered
// forever.
func (a *Aggregator) HandleMessage() kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			a.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventSearch, EventZeroResult:
			ev, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				a.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			a.RecordSearch(ev)
		case EventLinkAdded, EventLinkDeleted:
			ev, err := kafka.DecodeJSON[LinkEvent](value)
			if err != nil {
				a.logger.Error("failed to decode link event", "error", err)
				return nil
			}
			a.RecordLink(ev)
		default:
			a.logger.Warn("ignoring analytics event", "type", env.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.queryCounts[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextLatency] = event.LatencyMs
		a.nextLatency = (a.nextLatency + 1) % maxLatencySamples
	}
}

func (a *Aggregator) RecordLink(event LinkEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch event.Type {
	case EventLinkAdded:
		a.linksAdded++
	case EventLinkDeleted:
		a.linksDeleted++
	}
}

// DefaultTopQueries is how many queries Stats lists per ranking.
const DefaultTopQueries = 10

// Stats summarises everything recorded so far.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopQueries)
}

// StatsTop is Stats with the top-query lists cut to n entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		LinksAdded:      a.linksAdded,
		LinksDeleted:    a.linksDeleted,
		CapturedAt:      a.now().UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by descending count, then query, so equal counts are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
