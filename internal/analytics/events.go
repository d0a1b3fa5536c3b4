// Package analytics tracks how the link catalog is used: searches and
// catalog changes are emitted as events, published to Kafka (or straight to
// an in-process Aggregator) and summarised into periodic snapshots.
package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventLinkAdded   EventType = "link_added"
	EventLinkDeleted EventType = "link_deleted"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// LinkEvent describes a catalog change.
type LinkEvent struct {
	Type      EventType `json:"type"`
	LinkID    string    `json:"link_id"`
	URL       string    `json:"url,omitempty"`
	TagCount  int       `json:"tag_count"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope peeks at the type of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}
