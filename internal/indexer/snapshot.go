package indexer

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/tokenizer"
)

// Snapshot is an immutable view of the index as of one commit. Segments are
// ordered by commit, so their doc id ranges are ascending and disjoint.
type Snapshot struct {
	generation uint64
	schema     *schema.Schema
	analyzer   tokenizer.Analyzer
	segments   []*segment.Segment
	totalDocs  int
	fieldLens  []uint64
	nextDocID  uint64
}

func newSnapshot(gen uint64, s *schema.Schema, a tokenizer.Analyzer, segs []*segment.Segment, nextDocID uint64) *Snapshot {
	snap := &Snapshot{
		generation: gen,
		schema:     s,
		analyzer:   a,
		segments:   segs,
		fieldLens:  make([]uint64, s.NumFields()),
		nextDocID:  nextDocID,
	}
	for _, seg := range segs {
		snap.totalDocs += seg.DocCount()
		for _, f := range s.Fields() {
			snap.fieldLens[f.ID()] += seg.TotalFieldLength(f)
		}
	}
	return snap
}

// Generation counts successful non-empty commits.
func (s *Snapshot) Generation() uint64 { return s.generation }

func (s *Snapshot) Schema() *schema.Schema { return s.schema }

func (s *Snapshot) Analyzer() tokenizer.Analyzer { return s.analyzer }

// Segments returns the committed segments in commit order. The slice must
// not be modified.
func (s *Snapshot) Segments() []*segment.Segment { return s.segments }

// TotalDocs is the number of documents visible in the snapshot.
func (s *Snapshot) TotalDocs() int { return s.totalDocs }

// NextDocID is the id the writer will assign after this generation.
func (s *Snapshot) NextDocID() uint64 { return s.nextDocID }

// AvgFieldLength is the mean token count of field over all visible
// documents, including those with no value for it.
func (s *Snapshot) AvgFieldLength(f schema.Field) float64 {
	if s.totalDocs == 0 || f.ID() < 0 || f.ID() >= len(s.fieldLens) {
		return 0
	}
	return float64(s.fieldLens[f.ID()]) / float64(s.totalDocs)
}

// Stored returns the stored fields of docID.
func (s *Snapshot) Stored(docID uint64) (index.StoredDoc, error) {
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].MaxDocID() >= docID
	})
	if i == len(s.segments) || !s.segments[i].Contains(docID) {
		return nil, fmt.Errorf("doc %d at generation %d: %w", docID, s.generation, segment.ErrDocNotFound)
	}
	return s.segments[i].Stored(docID)
}

// ForEachStored visits every visible document in ascending id order until
// fn returns false.
func (s *Snapshot) ForEachStored(fn func(docID uint64, doc index.StoredDoc) bool) {
	stopped := false
	for _, seg := range s.segments {
		seg.ForEachStored(func(id uint64, doc index.StoredDoc) bool {
			if !fn(id, doc) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}
