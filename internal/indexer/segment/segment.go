// Package segment builds, encodes and decodes immutable index segments. A
// Segment is produced by exactly one commit and is never mutated afterwards,
// so it can be shared by any number of concurrent searches.
package segment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// ErrDocNotFound is returned by Stored for ids outside the segment.
var ErrDocNotFound = errors.New("document not in segment")

type fieldIndex struct {
	terms    []index.TermEntry
	lengths  map[uint64]uint32
	totalLen uint64
}

// Segment is an immutable unit of postings plus stored fields.
type Segment struct {
	name   string
	docs   *roaring64.Bitmap
	fields []fieldIndex
	stored map[uint64]index.StoredDoc
}

func (s *Segment) Name() string { return s.name }

// DocCount returns the number of documents in the segment.
func (s *Segment) DocCount() int {
	return int(s.docs.GetCardinality())
}

// Contains reports whether docID was committed in this segment.
func (s *Segment) Contains(docID uint64) bool {
	return s.docs.Contains(docID)
}

// MinDocID and MaxDocID bound the segment's id range.
func (s *Segment) MinDocID() uint64 { return s.docs.Minimum() }
func (s *Segment) MaxDocID() uint64 { return s.docs.Maximum() }

// TermCount returns the number of distinct (field, term) pairs.
func (s *Segment) TermCount() int {
	n := 0
	for _, f := range s.fields {
		n += len(f.terms)
	}
	return n
}

// Postings returns the postings of term in field, ordered by doc id, or nil.
func (s *Segment) Postings(field schema.Field, term string) index.PostingList {
	if field.ID() < 0 || field.ID() >= len(s.fields) {
		return nil
	}
	terms := s.fields[field.ID()].terms
	idx := sort.Search(len(terms), func(i int) bool {
		return terms[i].Term >= term
	})
	if idx >= len(terms) || terms[idx].Term != term {
		return nil
	}
	return terms[idx].Postings
}

// FieldLength is the number of tokens docID has in field.
func (s *Segment) FieldLength(field schema.Field, docID uint64) uint32 {
	if field.ID() < 0 || field.ID() >= len(s.fields) {
		return 0
	}
	return s.fields[field.ID()].lengths[docID]
}

// TotalFieldLength sums FieldLength over every document in the segment.
func (s *Segment) TotalFieldLength(field schema.Field) uint64 {
	if field.ID() < 0 || field.ID() >= len(s.fields) {
		return 0
	}
	return s.fields[field.ID()].totalLen
}

// Stored returns the stored field values of docID.
func (s *Segment) Stored(docID uint64) (index.StoredDoc, error) {
	doc, ok := s.stored[docID]
	if !ok {
		return nil, fmt.Errorf("doc %d in segment %s: %w", docID, s.name, ErrDocNotFound)
	}
	return doc, nil
}

// ForEachStored visits stored documents in ascending id order until fn
// returns false.
func (s *Segment) ForEachStored(fn func(docID uint64, doc index.StoredDoc) bool) {
	it := s.docs.Iterator()
	for it.HasNext() {
		id := it.Next()
		if !fn(id, s.stored[id]) {
			return
		}
	}
}
