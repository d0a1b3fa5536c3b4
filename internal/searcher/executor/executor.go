// Package executor runs parsed queries against an index snapshot.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/collector"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Hit is a ranked document with its stored fields.
type Hit struct {
	DocID  uint64          `json:"doc_id"`
	Score  float64         `json:"score"`
	Stored index.StoredDoc `json:"stored"`
}

// SearchResult is the outcome of one query.
type SearchResult struct {
	Query      string         `json:"query"`
	Generation uint64         `json:"generation"`
	TotalHits  int            `json:"total_hits"`
	Hits       []Hit          `json:"hits"`
	TermStats  map[string]int `json:"term_stats"`
}

type Executor struct {
	logger *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
}

type termKey struct {
	term  string
	field int
}

// Execute scores every document matching q in snap and returns the best
// limit of them, best first, ties broken by ascending doc id. It fails with
// ErrInvalidLimit for limit <= 0 and ErrSearch when a selected document's
// stored fields cannot be read.
func (e *Executor) Execute(ctx context.Context, q *parser.Query, snap *indexer.Snapshot, limit int) (*SearchResult, error) {
	if limit <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidLimit, nil, "got %d", limit)
	}
	start := time.Now()
	result := &SearchResult{
		Query:      q.Raw,
		Generation: snap.Generation(),
		Hits:       []Hit{},
		TermStats:  make(map[string]int),
	}
	if snap.TotalDocs() == 0 {
		return result, nil
	}

	// Collection statistics are taken over the whole snapshot so a
	// document scores the same whichever segment holds it.
	idf := make(map[termKey]float64)
	for _, c := range q.Clauses {
		for _, f := range c.Fields {
			key := termKey{c.Term, f.ID()}
			if _, done := idf[key]; done {
				continue
			}
			df := 0
			for _, seg := range snap.Segments() {
				df += len(seg.Postings(f, c.Term))
			}
			if c.Occur != parser.MustNot {
				result.TermStats[c.Term] += df
			}
			idf[key] = ranker.IDF(snap.TotalDocs(), df)
		}
	}
	stats := make(map[int]ranker.FieldStats)
	for _, f := range snap.Schema().IndexedFields() {
		stats[f.ID()] = ranker.FieldStats{
			TotalDocs:      snap.TotalDocs(),
			AvgFieldLength: snap.AvgFieldLength(f),
		}
	}

	perSegment := make([][]collector.Hit, 0, len(snap.Segments()))
	for _, seg := range snap.Segments() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, total := scoreSegment(seg, q, idf, stats, limit)
		result.TotalHits += total
		perSegment = append(perSegment, hits)
	}
	top := collector.Merge(perSegment, limit)

	result.Hits = make([]Hit, 0, len(top))
	for _, h := range top {
		stored, err := snap.Stored(h.DocID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrSearch, err, "loading stored fields of doc %d", h.DocID)
		}
		result.Hits = append(result.Hits, Hit{DocID: h.DocID, Score: h.Score, Stored: stored})
	}

	e.logger.Debug("query executed",
		"query", q.Raw,
		"clauses", len(q.Clauses),
		"generation", snap.Generation(),
		"candidates", result.TotalHits,
		"results", len(result.Hits),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// scoreSegment applies q to one segment. Scores accumulate in clause order,
// then field order, so the same query always sums the same floats in the
// same order.
func scoreSegment(seg *segment.Segment, q *parser.Query, idf map[termKey]float64, stats map[int]ranker.FieldStats, limit int) ([]collector.Hit, int) {
	scores := make(map[uint64]float64)
	var should, must, mustNot *roaring64.Bitmap
	for _, c := range q.Clauses {
		matched := roaring64.New()
		for _, f := range c.Fields {
			for _, p := range seg.Postings(f, c.Term) {
				matched.Add(p.DocID)
				if c.Occur == parser.MustNot {
					continue
				}
				scores[p.DocID] += ranker.Score(idf[termKey{c.Term, f.ID()}], p.Frequency, seg.FieldLength(f, p.DocID), stats[f.ID()])
			}
		}
		switch c.Occur {
		case parser.Must:
			if must == nil {
				must = matched
			} else {
				must.And(matched)
			}
		case parser.MustNot:
			mustNot = union(mustNot, matched)
		default:
			should = union(should, matched)
		}
	}

	candidates := must
	if candidates == nil {
		candidates = should
	}
	if candidates == nil {
		return nil, 0
	}
	if mustNot != nil {
		candidates.AndNot(mustNot)
	}

	top := collector.New(limit)
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		top.Collect(collector.Hit{DocID: id, Score: ranker.Round(scores[id])})
	}
	return top.Results(), int(candidates.GetCardinality())
}

func union(acc, b *roaring64.Bitmap) *roaring64.Bitmap {
	if acc == nil {
		return b
	}
	acc.Or(b)
	return acc
}
