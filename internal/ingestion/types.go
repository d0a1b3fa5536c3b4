// Package ingestion accepts bookmarks in bulk over HTTP and queues them on
// Kafka; the ingest consumer adds them to the catalog asynchronously.
package ingestion

import "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"

// MaxBatch is the most links one request may queue.
const MaxBatch = 500

// IngestRequest is the JSON body accepted by the ingestion endpoint.
type IngestRequest struct {
	Links []proto.IngestEvent `json:"links"`
}

// IngestResponse is returned once the links are queued.
type IngestResponse struct {
	Accepted int    `json:"accepted"`
	Status   string `json:"status"`
}
