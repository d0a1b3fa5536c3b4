// Package bookmark is the boundary between the link service and the search
// engine. It fixes the bookmark schema, opens the configured store and turns
// raw keyword queries into ranked, typed results.
package bookmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/metrics"
)

// Field names of the bookmark schema.
const (
	FieldURL         = "url"
	FieldDescription = "description"
	FieldTags        = "tags"
	FieldID          = "id"
	FieldCreatedAt   = "created_at"
)

// Fields are the resolved handles of the bookmark schema.
type Fields struct {
	URL         schema.Field
	Description schema.Field
	Tags        schema.Field
	ID          schema.Field
	CreatedAt   schema.Field
}

// NewSchema declares url, description and tags as searchable stored text,
// plus stored-only fields carrying the link identifier and creation time.
func NewSchema() (*schema.Schema, Fields, error) {
	b := schema.NewBuilder()
	f := Fields{
		URL:         b.AddTextField(FieldURL, schema.FieldOptions{Indexed: true, Stored: true}),
		Description: b.AddTextField(FieldDescription, schema.FieldOptions{Indexed: true, Stored: true}),
		Tags:        b.AddTextField(FieldTags, schema.FieldOptions{Indexed: true, Stored: true, MultiValued: true}),
		ID:          b.AddTextField(FieldID, schema.FieldOptions{Stored: true}),
		CreatedAt:   b.AddTextField(FieldCreatedAt, schema.FieldOptions{Stored: true}),
	}
	s, err := b.Build()
	if err != nil {
		return nil, Fields{}, err
	}
	return s, f, nil
}

// Record is one bookmark as handed to the index.
type Record struct {
	ID          string
	URL         string
	Description string
	Tags        []string
	CreatedAt   time.Time
}

// Result is one ranked bookmark.
type Result struct {
	DocID       uint64   `json:"doc_id"`
	ID          string   `json:"id,omitempty"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Score       float64  `json:"score"`
}

// Response carries the results of one query along with how they were
// produced.
type Response struct {
	Query      string         `json:"query"`
	Generation uint64         `json:"generation"`
	TotalHits  int            `json:"total_hits"`
	Results    []Result       `json:"results"`
	TermStats  map[string]int `json:"term_stats"`
	Cached     bool           `json:"cached"`
}

type options struct {
	store   store.Store
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option customises New.
type Option func(*options)

// WithStore uses st instead of opening cfg.Storage. The caller keeps
// ownership of st; Close leaves it open.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

// WithCache memoises search results in c.
func WithCache(c *cache.QueryCache) Option {
	return func(o *options) { o.cache = c }
}

// WithMetrics records index and search metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Index is a bookmark search index with its single writer.
type Index struct {
	fields    Fields
	idx       *indexer.Index
	writer    *indexer.Writer
	reader    *indexer.Reader
	parser    *parser.Parser
	exec      *executor.Executor
	store     store.Store
	ownsStore bool
	cache     *cache.QueryCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New opens the bookmark index described by cfg. An index already present
// in the configured store is recovered, including its next document id.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Index, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	analyzer, err := tokenizer.ParseAnalyzer(cfg.Indexer.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("indexer config: %w", err)
	}
	policy, err := indexer.ParseReloadPolicy(cfg.Indexer.ReloadPolicy)
	if err != nil {
		return nil, fmt.Errorf("indexer config: %w", err)
	}
	compression, err := segment.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}
	s, fields, err := NewSchema()
	if err != nil {
		return nil, err
	}

	st, ownsStore := o.store, false
	if st == nil {
		st, err = store.Open(ctx, cfg.Storage, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Kind, err)
		}
		ownsStore = true
	}
	closeStore := func() {
		if ownsStore {
			st.Close()
		}
	}

	idx, err := indexer.Open(ctx, s, st, indexer.Options{
		Analyzer:    analyzer,
		Compression: compression,
		Logger:      o.logger,
	})
	if err != nil {
		closeStore()
		return nil, err
	}
	w, err := idx.Writer()
	if err != nil {
		closeStore()
		return nil, err
	}
	p, err := parser.New(s, idx.Analyzer())
	if err != nil {
		w.Close()
		closeStore()
		return nil, err
	}

	b := &Index{
		fields:    fields,
		idx:       idx,
		writer:    w,
		reader:    idx.Reader(policy),
		parser:    p,
		exec:      executor.New(),
		store:     st,
		ownsStore: ownsStore,
		cache:     o.cache,
		metrics:   o.metrics,
		logger:    o.logger.With("component", "bookmark-index"),
	}
	b.observeSnapshot(idx.Snapshot())
	b.logger.Info("bookmark index ready",
		"storage", cfg.Storage.Kind,
		"analyzer", idx.Analyzer(),
		"reload_policy", policy,
		"generation", idx.Snapshot().Generation(),
		"docs", idx.Snapshot().TotalDocs(),
	)
	return b, nil
}

// Add buffers a bookmark without an external identifier.
func (b *Index) Add(url, description string, tags []string) (uint64, error) {
	return b.AddRecord(Record{URL: url, Description: description, Tags: tags})
}

// AddRecord buffers rec and returns its document id. It becomes searchable
// after the next Commit. Values that are not valid UTF-8 cannot be stored
// byte for byte and are rejected with ErrInvalidInput.
func (b *Index) AddRecord(rec Record) (uint64, error) {
	if err := checkUTF8(rec); err != nil {
		return 0, err
	}
	doc := index.NewDocument().
		AddText(b.fields.URL, rec.URL).
		AddText(b.fields.Description, rec.Description)
	for _, tag := range rec.Tags {
		doc.AddText(b.fields.Tags, tag)
	}
	if rec.ID != "" {
		doc.AddText(b.fields.ID, rec.ID)
	}
	if !rec.CreatedAt.IsZero() {
		doc.AddText(b.fields.CreatedAt, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	id, err := b.writer.Add(doc)
	if err != nil {
		return 0, err
	}
	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.Inc()
	}
	return id, nil
}

func checkUTF8(rec Record) error {
	for name, v := range map[string]string{FieldID: rec.ID, FieldURL: rec.URL, FieldDescription: rec.Description} {
		if !utf8.ValidString(v) {
			return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "%s is not valid UTF-8", name)
		}
	}
	for i, tag := range rec.Tags {
		if !utf8.ValidString(tag) {
			return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "tag %d is not valid UTF-8", i)
		}
	}
	return nil
}

// Commit publishes every buffered bookmark as a new generation.
func (b *Index) Commit(ctx context.Context) error {
	start := time.Now()
	pending := b.writer.Pending()
	err := b.writer.Commit(ctx)
	if b.metrics != nil {
		switch {
		case err != nil:
			b.metrics.CommitsTotal.WithLabelValues("error").Inc()
		case pending == 0:
			b.metrics.CommitsTotal.WithLabelValues("empty").Inc()
		default:
			b.metrics.CommitsTotal.WithLabelValues("ok").Inc()
			b.metrics.CommitDuration.Observe(time.Since(start).Seconds())
		}
	}
	if err != nil {
		return err
	}
	b.observeSnapshot(b.idx.Snapshot())
	return nil
}

// Pending is the number of bookmarks waiting for a commit.
func (b *Index) Pending() int {
	return b.writer.Pending()
}

// Generation is the generation searches currently run against.
func (b *Index) Generation() uint64 {
	return b.reader.Snapshot().Generation()
}

// NumDocs is the number of committed bookmarks visible to searches.
func (b *Index) NumDocs() int {
	return b.reader.Snapshot().TotalDocs()
}

// Reload makes a manual-policy reader observe the latest commit.
func (b *Index) Reload() uint64 {
	return b.reader.Reload().Generation()
}

// Search returns the limit best matches for keyword, best first.
func (b *Index) Search(ctx context.Context, keyword string, limit int) ([]Result, error) {
	resp, err := b.Query(ctx, keyword, limit)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Query is Search with the query metadata. Blank keywords fail with
// ErrQuerySyntax and a non-positive limit with ErrInvalidLimit.
func (b *Index) Query(ctx context.Context, keyword string, limit int) (*Response, error) {
	start := time.Now()
	resp, err := b.query(ctx, keyword, limit)
	if b.metrics != nil {
		b.observeQuery(resp, err, time.Since(start))
	}
	return resp, err
}

func (b *Index) query(ctx context.Context, keyword string, limit int) (*Response, error) {
	if limit <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidLimit, nil, "got %d", limit)
	}
	q, err := b.parser.Parse(keyword)
	if err != nil {
		return nil, err
	}
	snap := b.reader.Snapshot()

	compute := func() (*executor.SearchResult, error) {
		return b.exec.Execute(ctx, q, snap, limit)
	}
	var (
		result *executor.SearchResult
		hit    bool
	)
	if b.cache != nil {
		key := cache.Key{IndexID: b.idx.ID(), Query: q.String(), Limit: limit, Generation: snap.Generation()}
		result, hit, err = b.cache.GetOrCompute(ctx, key, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Query:      keyword,
		Generation: result.Generation,
		TotalHits:  result.TotalHits,
		Results:    make([]Result, len(result.Hits)),
		TermStats:  result.TermStats,
		Cached:     hit,
	}
	for i, h := range result.Hits {
		resp.Results[i] = Result{
			DocID:       h.DocID,
			ID:          h.Stored.First(FieldID),
			URL:         h.Stored.First(FieldURL),
			Description: h.Stored.First(FieldDescription),
			Tags:        storedTags(h.Stored),
			Score:       h.Score,
		}
	}
	return resp, nil
}

// Records visits every committed bookmark in document id order until fn
// returns false. It reads the latest generation regardless of the reload
// policy.
func (b *Index) Records(fn func(docID uint64, rec Record) bool) {
	b.idx.Snapshot().ForEachStored(func(docID uint64, doc index.StoredDoc) bool {
		rec := Record{
			ID:          doc.First(FieldID),
			URL:         doc.First(FieldURL),
			Description: doc.First(FieldDescription),
			Tags:        storedTags(doc),
		}
		if ts := doc.First(FieldCreatedAt); ts != "" {
			// Unparseable timestamps read back as the zero time.
			rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
		return fn(docID, rec)
	})
}

// storedTags never returns nil, so untagged bookmarks encode as [].
func storedTags(doc index.StoredDoc) []string {
	if tags := doc[FieldTags]; tags != nil {
		return tags
	}
	return []string{}
}

// ID identifies the index; see indexer.Index.ID.
func (b *Index) ID() string {
	return b.idx.ID()
}

// InvalidateCache drops every cached search result.
func (b *Index) InvalidateCache(ctx context.Context) error {
	if b.cache == nil {
		return nil
	}
	return b.cache.Invalidate(ctx)
}

// Close releases the writer and, when New opened it, the store. Bookmarks
// that were never committed are discarded.
func (b *Index) Close() error {
	var errs []error
	if n := b.writer.Pending(); n > 0 {
		b.logger.Warn("closing with uncommitted bookmarks", "pending", n)
	}
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.ownsStore {
		if err := b.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Store is the blob store holding the index. Callers may keep their own
// blobs in it under names outside the index's namespace.
func (b *Index) Store() store.Store {
	return b.store
}

// Ping checks that the backing store answers.
func (b *Index) Ping(ctx context.Context) error {
	if _, err := b.store.List(ctx, indexer.ManifestName); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

func (b *Index) observeSnapshot(snap *indexer.Snapshot) {
	if b.metrics == nil {
		return
	}
	b.metrics.IndexGeneration.Set(float64(snap.Generation()))
	b.metrics.IndexDocs.Set(float64(snap.TotalDocs()))
	b.metrics.IndexSegments.Set(float64(len(snap.Segments())))
}

func (b *Index) observeQuery(resp *Response, err error, elapsed time.Duration) {
	var resultType string
	switch {
	case errors.Is(err, apperrors.ErrQuerySyntax), errors.Is(err, apperrors.ErrInvalidLimit):
		resultType = "invalid"
	case err != nil:
		resultType = "error"
	case len(resp.Results) == 0:
		resultType = "zero_result"
	default:
		resultType = "hit"
	}
	b.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if err != nil {
		return
	}
	cacheStatus := "miss"
	if resp.Cached {
		cacheStatus = "hit"
		b.metrics.CacheHitsTotal.Inc()
	} else if b.cache != nil {
		b.metrics.CacheMissesTotal.Inc()
	} else {
		cacheStatus = "disabled"
	}
	b.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	b.metrics.SearchResultsCount.Observe(float64(len(resp.Results)))
}

// NormalizeTags trims tags and drops empty ones, preserving order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
