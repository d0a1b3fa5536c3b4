package indexer

import (
	"context"
	"errors"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/segment"
)

// ErrWriterClosed is returned by a Writer after Close.
var ErrWriterClosed = errors.New("writer closed")

// Writer buffers documents and commits them. Add and Commit may be called
// from any goroutine; documents added while a commit is persisting land in
// the following generation.
type Writer struct {
	idx *Index

	mu        sync.Mutex
	buf       *segment.Builder
	nextDocID uint64
	closed    bool

	// commitMu keeps commits in order without blocking Add.
	commitMu sync.Mutex
}

// Add validates doc against the schema, assigns it the next doc id and
// buffers it. The document must not be modified afterwards.
func (w *Writer) Add(doc *index.Document) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWriterClosed
	}
	id := w.nextDocID
	if err := w.buf.Add(id, doc); err != nil {
		return 0, err
	}
	w.nextDocID++
	return id, nil
}

// Pending is the number of documents buffered since the last commit.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Len()
}

// PendingBytes approximates the buffered text volume.
func (w *Writer) PendingBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Size()
}

// Commit freezes the buffered documents into a segment, persists it and
// publishes a new generation. With nothing buffered it is a no-op. On
// failure the error wraps ErrCommit, no generation is published and the
// documents stay buffered for the next attempt.
func (w *Writer) Commit(ctx context.Context) error {
	w.commitMu.Lock()
	defer w.commitMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	pending := w.buf
	nextDocID := w.nextDocID
	if pending.Len() == 0 {
		w.mu.Unlock()
		return nil
	}
	w.buf = segment.NewBuilder(w.idx.schema, w.idx.analyzer)
	w.mu.Unlock()

	if _, err := w.idx.publish(ctx, pending, nextDocID); err != nil {
		w.mu.Lock()
		pending.Absorb(w.buf)
		w.buf = pending
		w.mu.Unlock()
		return err
	}
	return nil
}

// Close releases the writer slot. Buffered documents that were never
// committed are discarded.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.idx.writerActive.Store(false)
	return nil
}
