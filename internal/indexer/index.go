// Package indexer owns the write side of the search engine: a single Writer
// buffers documents and commits them as immutable segments, and the Index
// publishes each commit as a new Snapshot through one atomic pointer swap.
// Readers never take a lock.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	ManifestName   = "MANIFEST"
	SegmentPrefix  = "segments/"
	manifestFormat = 1
	loadParallel   = 4
)

// Manifest names the live segments and everything needed to reopen the
// index with the same schema and analyzer.
type Manifest struct {
	Version     int                `json:"version"`
	IndexID     string             `json:"index_id"`
	Generation  uint64             `json:"generation"`
	Analyzer    tokenizer.Analyzer `json:"analyzer"`
	Compression string             `json:"compression"`
	Fields      []schema.Entry     `json:"fields"`
	Segments    []string           `json:"segments"`
	NextDocID   uint64             `json:"next_doc_id"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Options tune a newly opened index. Analyzer is ignored when the store
// already holds a manifest.
type Options struct {
	Analyzer    tokenizer.Analyzer
	Compression segment.Compression
	Logger      *slog.Logger
}

// Index is the schema plus the ordered list of committed segments.
type Index struct {
	id           string
	schema       *schema.Schema
	analyzer     tokenizer.Analyzer
	compression  segment.Compression
	store        store.Store
	current      atomic.Pointer[Snapshot]
	writerActive atomic.Bool
	commitMu     sync.Mutex
	logger       *slog.Logger
}

// Open loads the index persisted in st, or starts an empty one. An existing
// manifest whose fields differ from s is rejected with ErrSchema.
func Open(ctx context.Context, s *schema.Schema, st store.Store, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	analyzer := opts.Analyzer
	if analyzer == "" {
		analyzer = tokenizer.Simple
	}
	idx := &Index{
		id:          uuid.NewString(),
		schema:      s,
		analyzer:    analyzer,
		compression: opts.Compression,
		store:       st,
		logger:      logger.With("component", "indexer"),
	}

	data, err := st.Get(ctx, ManifestName)
	if errors.Is(err, store.ErrNotFound) {
		idx.current.Store(newSnapshot(0, s, analyzer, nil, 0))
		idx.logger.Info("starting empty index", "index_id", idx.id, "analyzer", analyzer)
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != manifestFormat {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	persisted, err := schema.FromEntries(m.Fields)
	if err != nil {
		return nil, err
	}
	if !persisted.Equal(s) {
		return nil, apperrors.Wrap(apperrors.ErrSchema, nil, "index was written with %s, opened with %s", persisted, s)
	}
	if m.Analyzer != "" {
		idx.analyzer = m.Analyzer
	}
	if m.IndexID != "" {
		idx.id = m.IndexID
	}

	segs := make([]*segment.Segment, len(m.Segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallel)
	for i, name := range m.Segments {
		g.Go(func() error {
			blob, err := st.Get(gctx, name)
			if err != nil {
				return fmt.Errorf("reading segment %s: %w", name, err)
			}
			seg, err := segment.Decode(name, blob, s.NumFields())
			if err != nil {
				return fmt.Errorf("decoding segment %s: %w", name, err)
			}
			segs[i] = seg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := newSnapshot(m.Generation, s, idx.analyzer, segs, m.NextDocID)
	idx.current.Store(snap)
	idx.logger.Info("index recovered",
		"index_id", idx.id,
		"generation", m.Generation,
		"segments", len(segs),
		"docs", snap.TotalDocs(),
		"analyzer", idx.analyzer,
	)
	return idx, nil
}

func (idx *Index) Schema() *schema.Schema { return idx.schema }

// ID identifies this index across processes. It is minted when the index is
// created and persisted in the manifest, so generations of different
// indexes never collide in a shared cache.
func (idx *Index) ID() string { return idx.id }

// Analyzer is the analyzer the index was built with; queries must use it.
func (idx *Index) Analyzer() tokenizer.Analyzer { return idx.analyzer }

// Snapshot returns the latest published generation.
func (idx *Index) Snapshot() *Snapshot {
	return idx.current.Load()
}

// Writer claims the single writer slot. A second call before the first
// writer is closed fails with ErrWriterBusy.
func (idx *Index) Writer() (*Writer, error) {
	if !idx.writerActive.CompareAndSwap(false, true) {
		return nil, apperrors.ErrWriterBusy
	}
	return &Writer{
		idx:       idx,
		buf:       segment.NewBuilder(idx.schema, idx.analyzer),
		nextDocID: idx.Snapshot().NextDocID(),
	}, nil
}

// publish freezes b as the next generation, persists it and swaps it in.
// Nothing is visible to readers unless every store write succeeded.
func (idx *Index) publish(ctx context.Context, b *segment.Builder, nextDocID uint64) (*Snapshot, error) {
	idx.commitMu.Lock()
	defer idx.commitMu.Unlock()

	start := time.Now()
	cur := idx.current.Load()
	gen := cur.Generation() + 1
	name := fmt.Sprintf("%sseg_%020d", SegmentPrefix, gen)

	seg, err := b.Build(name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCommit, err, "building segment %s", name)
	}
	data, err := segment.Encode(seg, idx.compression)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCommit, err, "encoding segment %s", name)
	}
	if err := idx.store.Put(ctx, name, data); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCommit, err, "writing segment %s", name)
	}

	segs := make([]*segment.Segment, 0, len(cur.Segments())+1)
	segs = append(segs, cur.Segments()...)
	segs = append(segs, seg)
	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.Name()
	}
	manifest, err := json.Marshal(Manifest{
		Version:     manifestFormat,
		IndexID:     idx.id,
		Generation:  gen,
		Analyzer:    idx.analyzer,
		Compression: idx.compression.String(),
		Fields:      idx.schema.Entries(),
		Segments:    names,
		NextDocID:   nextDocID,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCommit, err, "encoding manifest")
	}
	if err := idx.store.Put(ctx, ManifestName, manifest); err != nil {
		// The orphaned segment is unreferenced; removing it is best effort.
		if delErr := idx.store.Delete(context.WithoutCancel(ctx), name); delErr != nil {
			idx.logger.Warn("removing orphaned segment", "segment", name, "error", delErr)
		}
		return nil, apperrors.Wrap(apperrors.ErrCommit, err, "writing manifest for generation %d", gen)
	}

	snap := newSnapshot(gen, idx.schema, idx.analyzer, segs, nextDocID)
	idx.current.Store(snap)
	idx.logger.Info("segment committed",
		"segment", name,
		"generation", gen,
		"docs", seg.DocCount(),
		"terms", seg.TermCount(),
		"bytes", len(data),
		"total_docs", snap.TotalDocs(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}
