// Package proto defines the message types exchanged with the link service
// over the JSON-over-TCP RPC layer (see pkg/grpc) and the HTTP API.
//
// The shapes follow the link service's protobuf contract: a Link carries a
// server-assigned id, its url, a free-text description and a tag list.
package proto

// Method names served by the link service.
const (
	MethodAddLink    = "LinkService.AddLink"
	MethodListLinks  = "LinkService.ListLinks"
	MethodDeleteLink = "LinkService.DeleteLink"
	MethodSearch     = "LinkService.Search"
	MethodCommit     = "LinkService.Commit"
)

// ---------- Links ----------

// Link is one catalogued bookmark.
type Link struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedAt   int64    `json:"created_at"`
}

// AddLinkRequest is the input to AddLink. The reply is the stored Link.
type AddLinkRequest struct {
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// ListLinksRequest is the input to ListLinks.
type ListLinksRequest struct{}

// ListLinksResponse holds every live link in creation order.
type ListLinksResponse struct {
	Data []Link `json:"data"`
}

// DeleteLinkRequest is the input to DeleteLink.
type DeleteLinkRequest struct {
	ID string `json:"id"`
}

// DeleteLinkResponse is empty on success.
type DeleteLinkResponse struct{}

// ---------- Search ----------

// SearchRequest is the input to the Search RPC. A zero Limit selects the
// server default.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int32  `json:"limit"`
}

// SearchResponse is the output of the Search RPC.
type SearchResponse struct {
	Query      string         `json:"query"`
	Generation uint64         `json:"generation"`
	TotalHits  int32          `json:"total_hits"`
	Results    []SearchResult `json:"results"`
	Cached     bool           `json:"cached"`
	LatencyMs  int64          `json:"latency_ms"`
}

// SearchResult is one ranked link.
type SearchResult struct {
	Link
	Score float64 `json:"score"`
}

// ---------- Index ----------

// CommitRequest publishes buffered links.
type CommitRequest struct{}

// CommitResponse reports the generation searches now see.
type CommitResponse struct {
	Generation uint64 `json:"generation"`
	Docs       int64  `json:"docs"`
}

// IngestEvent is the message body on the link ingestion topic.
type IngestEvent struct {
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
