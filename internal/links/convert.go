package links

import "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"

// ToProto converts a link to its wire form.
func ToProto(l Link) proto.Link {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	var created int64
	if !l.CreatedAt.IsZero() {
		created = l.CreatedAt.Unix()
	}
	return proto.Link{
		ID:          l.ID,
		URL:         l.URL,
		Description: l.Description,
		Tags:        tags,
		CreatedAt:   created,
	}
}

// SearchToProto converts a search response to its wire form.
func SearchToProto(r *SearchResponse) proto.SearchResponse {
	out := proto.SearchResponse{
		Query:      r.Query,
		Generation: r.Generation,
		TotalHits:  int32(r.TotalHits),
		Results:    make([]proto.SearchResult, len(r.Hits)),
		Cached:     r.Cached,
		LatencyMs:  r.Latency.Milliseconds(),
	}
	for i, hit := range r.Hits {
		out.Results[i] = proto.SearchResult{Link: ToProto(hit.Link), Score: hit.Score}
	}
	return out
}
