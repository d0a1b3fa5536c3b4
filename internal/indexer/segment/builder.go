package segment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// ErrEmptySegment is returned by Build when nothing is buffered.
var ErrEmptySegment = errors.New("cannot build empty segment")

type pendingDoc struct {
	id     uint64
	values []index.FieldValue
}

// Builder buffers documents until they are frozen into a Segment. It is not
// safe for concurrent use; the index writer serialises access.
type Builder struct {
	schema   *schema.Schema
	analyzer tokenizer.Analyzer
	docs     []pendingDoc
	size     int64
}

func NewBuilder(s *schema.Schema, analyzer tokenizer.Analyzer) *Builder {
	return &Builder{
		schema:   s,
		analyzer: analyzer,
	}
}

// Add validates doc against the schema and buffers it under docID. Ids must
// be strictly increasing.
func (b *Builder) Add(docID uint64, doc *index.Document) error {
	if n := len(b.docs); n > 0 && docID <= b.docs[n-1].id {
		return fmt.Errorf("doc id %d not greater than last buffered id %d", docID, b.docs[n-1].id)
	}
	counts := make(map[int]int, doc.Len())
	for _, v := range doc.Values() {
		entry, err := b.schema.Entry(v.Field)
		if err != nil {
			return err
		}
		counts[v.Field.ID()]++
		if counts[v.Field.ID()] > 1 && !entry.MultiValued {
			return apperrors.Wrap(apperrors.ErrSchema, nil, "field %q is single-valued", entry.Name)
		}
	}
	values := make([]index.FieldValue, len(doc.Values()))
	copy(values, doc.Values())
	b.docs = append(b.docs, pendingDoc{id: docID, values: values})
	for _, v := range values {
		b.size += int64(len(v.Value))
	}
	return nil
}

// Len returns the number of buffered documents.
func (b *Builder) Len() int {
	return len(b.docs)
}

// Size approximates the buffered text volume in bytes.
func (b *Builder) Size() int64 {
	return b.size
}

// Absorb appends every document buffered in other after b's own. other's ids
// must all be greater than b's.
func (b *Builder) Absorb(other *Builder) {
	b.docs = append(b.docs, other.docs...)
	b.size += other.size
}

// Build tokenises every buffered document and freezes the result. The
// builder is left untouched so a failed commit can retry with the same
// contents.
func (b *Builder) Build(name string) (*Segment, error) {
	if len(b.docs) == 0 {
		return nil, ErrEmptySegment
	}
	numFields := b.schema.NumFields()
	entries := b.schema.Entries()

	termData := make([]map[string]index.PostingList, numFields)
	fields := make([]fieldIndex, numFields)
	for i := range fields {
		termData[i] = make(map[string]index.PostingList)
		fields[i].lengths = make(map[uint64]uint32)
	}
	docs := roaring64.New()
	stored := make(map[uint64]index.StoredDoc, len(b.docs))

	for _, doc := range b.docs {
		docs.Add(doc.id)
		storedDoc := make(index.StoredDoc)
		freqs := make([]map[string]uint32, numFields)
		for _, v := range doc.values {
			fid := v.Field.ID()
			entry := entries[fid]
			if entry.Stored {
				storedDoc[entry.Name] = append(storedDoc[entry.Name], v.Value)
			}
			if !entry.Indexed {
				continue
			}
			if freqs[fid] == nil {
				freqs[fid] = make(map[string]uint32)
			}
			tokens := b.analyzer.Tokenize(v.Value)
			for _, tok := range tokens {
				freqs[fid][tok.Term]++
			}
			fields[fid].lengths[doc.id] += uint32(len(tokens))
			fields[fid].totalLen += uint64(len(tokens))
		}
		for fid, tf := range freqs {
			for term, freq := range tf {
				termData[fid][term] = append(termData[fid][term], index.Posting{
					DocID:     doc.id,
					Frequency: freq,
				})
			}
		}
		stored[doc.id] = storedDoc
	}

	for fid, terms := range termData {
		entries := make([]index.TermEntry, 0, len(terms))
		for term, postings := range terms {
			entries = append(entries, index.TermEntry{
				Term:     term,
				Postings: postings,
			})
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Term < entries[j].Term
		})
		fields[fid].terms = entries
	}

	return &Segment{
		name:   name,
		docs:   docs,
		fields: fields,
		stored: stored,
	}, nil
}
