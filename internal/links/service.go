// Package links is the link catalog: it validates and stores bookmarks,
// feeds them to the search index and answers keyword searches with full
// link records. The index itself is append-only, so deletions are kept as
// tombstones here and filtered out of search results.
package links

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/bookmark"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// TombstonePrefix namespaces deletion markers inside the index's store.
const TombstonePrefix = "links/deleted/"

const (
	MaxURLLength         = 2048
	MaxDescriptionLength = 4096
	MaxTags              = 32
	MaxTagLength         = 64
)

// Link is one catalogued bookmark.
type Link struct {
	ID          string
	URL         string
	Description string
	Tags        []string
	CreatedAt   time.Time
}

// SearchHit is a matching link and its relevance score.
type SearchHit struct {
	Link
	Score float64
}

// SearchResponse is one answered search.
type SearchResponse struct {
	Query      string
	Generation uint64
	TotalHits  int
	Hits       []SearchHit
	Cached     bool
	Latency    time.Duration
}

// Tracker receives analytics events. *analytics.Collector satisfies it.
type Tracker interface {
	Track(key string, event any)
}

// Config controls commit batching and result limits.
type Config struct {
	// FlushInterval > 0 batches commits on a timer instead of committing
	// on every AddLink.
	FlushInterval time.Duration
	// MaxBufferedDocs forces a commit once this many links are pending.
	MaxBufferedDocs int
	DefaultLimit    int
	MaxResults      int
	// MaxConcurrent bounds searches in flight; callers beyond it wait for
	// a slot until their context ends. 0 means unbounded.
	MaxConcurrent int
}

// ConfigFrom extracts the service settings from the process config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		FlushInterval:   cfg.Indexer.FlushInterval,
		MaxBufferedDocs: cfg.Indexer.MaxBufferedDocs,
		DefaultLimit:    cfg.Search.DefaultLimit,
		MaxResults:      cfg.Search.MaxResults,
		MaxConcurrent:   cfg.Search.MaxConcurrent,
	}
}

type Option func(*Service)

// WithTracker emits link and search events to t.
func WithTracker(t Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

type entry struct {
	link  Link
	docID uint64
}

// Service owns the link catalog.
type Service struct {
	index   *bookmark.Index
	store   store.Store
	cfg     Config
	tracker Tracker
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
	slots   *semaphore.Weighted

	mu    sync.RWMutex
	links map[string]*entry
	// deleted links whose documents still sit in the index
	tombstoned int
}

// New restores the catalog from the committed index, skipping links that
// carry a tombstone.
func New(ctx context.Context, index *bookmark.Index, cfg Config, opts ...Option) (*Service, error) {
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxResults < cfg.DefaultLimit {
		cfg.MaxResults = cfg.DefaultLimit
	}
	s := &Service{
		index:  index,
		store:  index.Store(),
		cfg:    cfg,
		logger: slog.Default().With("component", "links"),
		newID:  uuid.NewString,
		now:    time.Now,
		links:  make(map[string]*entry),
	}
	if cfg.MaxConcurrent > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(s)
	}

	names, err := s.store.List(ctx, TombstonePrefix)
	if err != nil {
		return nil, fmt.Errorf("listing tombstones: %w", err)
	}
	deleted := make(map[string]struct{}, len(names))
	for _, name := range names {
		deleted[strings.TrimPrefix(name, TombstonePrefix)] = struct{}{}
	}
	index.Records(func(docID uint64, rec bookmark.Record) bool {
		if rec.ID == "" {
			return true
		}
		if _, ok := deleted[rec.ID]; ok {
			s.tombstoned++
			return true
		}
		s.links[rec.ID] = &entry{
			docID: docID,
			link: Link{
				ID:          rec.ID,
				URL:         rec.URL,
				Description: rec.Description,
				Tags:        rec.Tags,
				CreatedAt:   rec.CreatedAt,
			},
		}
		return true
	})
	s.logger.Info("link catalog restored", "links", len(s.links), "tombstoned", s.tombstoned)
	return s, nil
}

// AddLink validates and catalogues a link and hands it to the index. Unless
// commits are batched it is searchable when AddLink returns. If that commit
// fails the link stays catalogued and buffered, and is returned alongside
// the error; it becomes searchable with the next successful commit.
func (s *Service) AddLink(ctx context.Context, rawURL, description string, tags []string) (Link, error) {
	ctx, span := tracing.Start(ctx, "links.add")
	defer span.End()

	rawURL = strings.TrimSpace(rawURL)
	description = strings.TrimSpace(description)
	tags = bookmark.NormalizeTags(tags)
	if err := validate(rawURL, description, tags); err != nil {
		return Link{}, err
	}

	link := Link{
		ID:          s.newID(),
		URL:         rawURL,
		Description: description,
		Tags:        tags,
		CreatedAt:   s.now().UTC(),
	}
	docID, err := s.index.AddRecord(bookmark.Record{
		ID:          link.ID,
		URL:         link.URL,
		Description: link.Description,
		Tags:        link.Tags,
		CreatedAt:   link.CreatedAt,
	})
	if err != nil {
		return Link{}, err
	}
	s.mu.Lock()
	s.links[link.ID] = &entry{link: link, docID: docID}
	s.mu.Unlock()

	logger.FromContext(ctx).Debug("link added", "id", link.ID, "doc_id", docID)
	s.track(link.ID, analytics.LinkEvent{
		Type:      analytics.EventLinkAdded,
		LinkID:    link.ID,
		URL:       link.URL,
		TagCount:  len(link.Tags),
		Timestamp: link.CreatedAt,
	})

	if s.shouldCommit() {
		if _, _, err := s.Commit(ctx); err != nil {
			return link, err
		}
	}
	return link, nil
}

func (s *Service) shouldCommit() bool {
	if s.cfg.FlushInterval <= 0 {
		return true
	}
	return s.cfg.MaxBufferedDocs > 0 && s.index.Pending() >= s.cfg.MaxBufferedDocs
}

func validate(rawURL, description string, tags []string) error {
	switch {
	case rawURL == "":
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "url is required")
	case len(rawURL) > MaxURLLength:
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "url exceeds %d bytes", MaxURLLength)
	case len(description) > MaxDescriptionLength:
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "description exceeds %d bytes", MaxDescriptionLength)
	case len(tags) > MaxTags:
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "at most %d tags allowed", MaxTags)
	case !utf8.ValidString(rawURL):
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "url is not valid UTF-8")
	case !utf8.ValidString(description):
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "description is not valid UTF-8")
	}
	if _, err := url.Parse(rawURL); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "url %q", rawURL)
	}
	for _, t := range tags {
		if len(t) > MaxTagLength {
			return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "tag %q exceeds %d bytes", t, MaxTagLength)
		}
		if !utf8.ValidString(t) {
			return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "tag %q is not valid UTF-8", t)
		}
	}
	return nil
}

// Get returns one link.
func (s *Service) Get(_ context.Context, id string) (Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.links[id]
	if !ok {
		return Link{}, apperrors.Wrap(apperrors.ErrLinkNotFound, nil, "id %q", id)
	}
	return e.link, nil
}

// ListLinks returns every live link in creation order.
func (s *Service) ListLinks(_ context.Context) []Link {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.links))
	for _, e := range s.links {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	slices.SortFunc(entries, func(a, b *entry) int {
		switch {
		case a.docID < b.docID:
			return -1
		case a.docID > b.docID:
			return 1
		}
		return 0
	})
	out := make([]Link, len(entries))
	for i, e := range entries {
		out[i] = e.link
	}
	return out
}

// Count is the number of live links.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

type tombstone struct {
	DeletedAt time.Time `json:"deleted_at"`
}

// DeleteLink removes a link. The tombstone is persisted before the link
// leaves the catalog, so a deletion that returns nil survives a restart.
func (s *Service) DeleteLink(ctx context.Context, id string) error {
	s.mu.RLock()
	_, ok := s.links[id]
	s.mu.RUnlock()
	if !ok {
		return apperrors.Wrap(apperrors.ErrLinkNotFound, nil, "id %q", id)
	}

	data, err := json.Marshal(tombstone{DeletedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding tombstone: %w", err)
	}
	if err := s.store.Put(ctx, TombstonePrefix+id, data); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, err, "persisting deletion of %s", id)
	}

	s.mu.Lock()
	e, ok := s.links[id]
	if ok {
		delete(s.links, id)
		s.tombstoned++
	}
	s.mu.Unlock()
	if !ok {
		return apperrors.Wrap(apperrors.ErrLinkNotFound, nil, "id %q", id)
	}

	logger.FromContext(ctx).Info("link deleted", "id", id)
	s.track(id, analytics.LinkEvent{
		Type:      analytics.EventLinkDeleted,
		LinkID:    id,
		URL:       e.link.URL,
		TagCount:  len(e.link.Tags),
		Timestamp: s.now().UTC(),
	})
	return nil
}

// ResolveLimit applies the default for 0 and clamps to the maximum.
// Negative limits are rejected.
func (s *Service) ResolveLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, apperrors.Wrap(apperrors.ErrInvalidLimit, nil, "got %d", limit)
	case limit == 0:
		return s.cfg.DefaultLimit, nil
	case limit > s.cfg.MaxResults:
		return s.cfg.MaxResults, nil
	}
	return limit, nil
}

// Search ranks live links against query. Deleted links are dropped after
// ranking; the index is asked for enough extra hits to fill the page.
func (s *Service) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	limit, err := s.ResolveLimit(limit)
	if err != nil {
		return nil, err
	}
	ctx, span := tracing.Start(ctx, "links.search")
	defer span.End()
	span.SetAttr("limit", limit)

	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrTimeout, err, "waiting for a search slot")
		}
		defer s.slots.Release(1)
	}

	s.mu.RLock()
	extra := s.tombstoned
	s.mu.RUnlock()

	start := time.Now()
	resp, err := s.index.Query(ctx, query, limit+extra)
	if err != nil {
		return nil, err
	}

	out := &SearchResponse{
		Query:      resp.Query,
		Generation: resp.Generation,
		TotalHits:  resp.TotalHits,
		Hits:       make([]SearchHit, 0, min(limit, len(resp.Results))),
		Cached:     resp.Cached,
	}
	s.mu.RLock()
	for _, r := range resp.Results {
		e, ok := s.links[r.ID]
		if !ok {
			out.TotalHits--
			continue
		}
		if len(out.Hits) < limit {
			out.Hits = append(out.Hits, SearchHit{Link: e.link, Score: r.Score})
		}
	}
	s.mu.RUnlock()
	out.Latency = time.Since(start)
	span.SetAttr("hits", len(out.Hits))
	span.SetAttr("cached", out.Cached)

	eventType := analytics.EventSearch
	if len(out.Hits) == 0 {
		eventType = analytics.EventZeroResult
	}
	s.track(query, analytics.SearchEvent{
		Type:       eventType,
		Query:      query,
		TotalHits:  out.TotalHits,
		Returned:   len(out.Hits),
		LatencyMs:  out.Latency.Milliseconds(),
		CacheHit:   out.Cached,
		Generation: out.Generation,
		Timestamp:  time.Now().UTC(),
		RequestID:  logger.RequestID(ctx),
	})
	logger.FromContext(ctx).Info("search completed",
		"query", query,
		"total_hits", out.TotalHits,
		"returned", len(out.Hits),
		"cache_hit", out.Cached,
		"latency_ms", out.Latency.Milliseconds(),
	)
	return out, nil
}

// Commit makes every buffered link searchable and reports the resulting
// index generation and document count.
func (s *Service) Commit(ctx context.Context) (uint64, int, error) {
	ctx, span := tracing.Start(ctx, "links.commit")
	defer span.End()
	if err := s.index.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return s.index.Generation(), s.index.NumDocs(), nil
}

// Run commits buffered links every FlushInterval until ctx is cancelled.
// It returns at once when commits are not batched.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.index.Pending() == 0 {
				continue
			}
			// A failed commit keeps the buffer; the next tick retries it.
			if _, _, err := s.Commit(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("periodic commit failed", "pending", s.index.Pending(), "error", err)
			}
		}
	}
}

// Close commits whatever is still buffered.
func (s *Service) Close(ctx context.Context) error {
	if s.index.Pending() == 0 {
		return nil
	}
	_, _, err := s.Commit(ctx)
	return err
}

// Ping reports whether the index store answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.index.Ping(ctx)
}

func (s *Service) track(key string, event any) {
	if s.tracker != nil {
		s.tracker.Track(key, event)
	}
}
