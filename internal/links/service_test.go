package links

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/bookmark"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingTracker) Track(_ string, event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingTracker) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

var testConfig = Config{DefaultLimit: 10, MaxResults: 50}

func newService(t *testing.T, cfg Config, opts ...Option) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	idx, err := bookmark.New(context.Background(), config.Default(), bookmark.WithStore(mem))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	s, err := New(context.Background(), idx, cfg, opts...)
	require.NoError(t, err)
	return s, mem
}

func TestAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, testConfig)
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	link, err := s.AddLink(ctx, " https://example.com ", "example site", []string{"demo", " "})
	require.NoError(t, err)
	assert.NotEmpty(t, link.ID)
	assert.Equal(t, "https://example.com", link.URL)
	assert.Equal(t, []string{"demo"}, link.Tags)
	assert.Equal(t, fixed, link.CreatedAt)

	_, err = s.AddLink(ctx, "https://other.test", "something else", nil)
	require.NoError(t, err)

	resp, err := s.Search(ctx, "example", 0)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, link, resp.Hits[0].Link)
	assert.Equal(t, 1, resp.TotalHits)
	assert.Equal(t, uint64(2), resp.Generation, "each add commits")
}

func TestAddLinkValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, testConfig)

	manyTags := make([]string, MaxTags+1)
	for i := range manyTags {
		manyTags[i] = fmt.Sprintf("t%d", i)
	}
	cases := map[string]struct {
		url, desc string
		tags      []string
	}{
		"empty url":     {url: "  "},
		"long url":      {url: "https://x.test/" + strings.Repeat("a", MaxURLLength)},
		"long desc":     {url: "https://x.test", desc: strings.Repeat("d", MaxDescriptionLength+1)},
		"too many tags": {url: "https://x.test", tags: manyTags},
		"long tag":      {url: "https://x.test", tags: []string{strings.Repeat("t", MaxTagLength+1)}},
		"bad url":       {url: "http://[::1"},
		"utf8 url":      {url: "https://x.test/caf\xff"},
		"utf8 desc":     {url: "https://x.test", desc: "caf\xff example"},
		"utf8 tag":      {url: "https://x.test", tags: []string{"t\xfeg"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.AddLink(ctx, tc.url, tc.desc, tc.tags)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
	assert.Zero(t, s.Count())
}

func TestListLinksInCreationOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, testConfig)
	var want []string
	for i := 0; i < 5; i++ {
		l, err := s.AddLink(ctx, fmt.Sprintf("https://%d.test", i), "", nil)
		require.NoError(t, err)
		want = append(want, l.ID)
	}
	var got []string
	for _, l := range s.ListLinks(ctx) {
		got = append(got, l.ID)
	}
	assert.Equal(t, want, got)
}

func TestDeleteLinkFiltersSearch(t *testing.T) {
	ctx := context.Background()
	s, mem := newService(t, testConfig)
	var ids []string
	for i := 0; i < 3; i++ {
		l, err := s.AddLink(ctx, fmt.Sprintf("https://go%d.test", i), "golang notes", nil)
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}

	require.NoError(t, s.DeleteLink(ctx, ids[0]))
	names, err := mem.List(ctx, TombstonePrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{TombstonePrefix + ids[0]}, names)

	resp, err := s.Search(ctx, "golang", 2)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2, "page is refilled past the deleted link")
	for _, h := range resp.Hits {
		assert.NotEqual(t, ids[0], h.ID)
	}
	assert.Equal(t, 2, resp.TotalHits)
	assert.Len(t, s.ListLinks(ctx), 2)

	_, err = s.Get(ctx, ids[0])
	assert.ErrorIs(t, err, apperrors.ErrLinkNotFound)
	assert.ErrorIs(t, s.DeleteLink(ctx, ids[0]), apperrors.ErrLinkNotFound)
	assert.ErrorIs(t, s.DeleteLink(ctx, "missing"), apperrors.ErrLinkNotFound)
}

func TestDeleteKeepsLinkWhenTombstoneFails(t *testing.T) {
	ctx := context.Background()
	s, mem := newService(t, testConfig)
	l, err := s.AddLink(ctx, "https://keep.test", "keep me", nil)
	require.NoError(t, err)

	mem.FailPuts(TombstonePrefix)
	assert.ErrorIs(t, s.DeleteLink(ctx, l.ID), apperrors.ErrInternal)
	_, err = s.Get(ctx, l.ID)
	assert.NoError(t, err)
}

func TestCatalogSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Storage.Kind = config.StorageLocal
	cfg.Storage.Path = t.TempDir()

	idx, err := bookmark.New(ctx, cfg)
	require.NoError(t, err)
	s, err := New(ctx, idx, testConfig)
	require.NoError(t, err)
	kept, err := s.AddLink(ctx, "https://kept.test", "rust book", []string{"rust"})
	require.NoError(t, err)
	gone, err := s.AddLink(ctx, "https://gone.test", "rust blog", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteLink(ctx, gone.ID))
	require.NoError(t, idx.Close())

	idx, err = bookmark.New(ctx, cfg)
	require.NoError(t, err)
	defer idx.Close()
	s, err = New(ctx, idx, testConfig)
	require.NoError(t, err)

	links := s.ListLinks(ctx)
	require.Len(t, links, 1)
	assert.Equal(t, kept.ID, links[0].ID)
	assert.True(t, kept.CreatedAt.Equal(links[0].CreatedAt))

	resp, err := s.Search(ctx, "rust", 10)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, kept.ID, resp.Hits[0].ID)
}

func TestBatchedCommits(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Config{FlushInterval: time.Hour, MaxBufferedDocs: 2, DefaultLimit: 10, MaxResults: 10})

	_, err := s.AddLink(ctx, "https://a.test", "batched", nil)
	require.NoError(t, err)
	resp, err := s.Search(ctx, "batched", 10)
	require.NoError(t, err)
	assert.Empty(t, resp.Hits, "not committed yet")

	_, err = s.AddLink(ctx, "https://b.test", "batched", nil)
	require.NoError(t, err)
	resp, err = s.Search(ctx, "batched", 10)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2, "buffer limit forces a commit")
}

func TestRunFlushesOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := newService(t, Config{FlushInterval: 10 * time.Millisecond, DefaultLimit: 10, MaxResults: 10})

	_, err := s.AddLink(ctx, "https://tick.test", "ticker", nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.index.Pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestCloseCommitsPending(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Config{FlushInterval: time.Hour, DefaultLimit: 10, MaxResults: 10})
	_, err := s.AddLink(ctx, "https://late.test", "late", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	assert.Zero(t, s.index.Pending())
}

func TestCommitFailureKeepsLink(t *testing.T) {
	ctx := context.Background()
	s, mem := newService(t, testConfig)
	mem.FailPuts("segments/")

	link, err := s.AddLink(ctx, "https://retry.test", "retry later", nil)
	assert.ErrorIs(t, err, apperrors.ErrCommit)
	assert.NotEmpty(t, link.ID)
	assert.Equal(t, 1, s.Count())

	mem.FailPuts("")
	gen, docs, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, 1, docs)
	resp, err := s.Search(ctx, "retry", 10)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 1)
}

func TestSearchLimits(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Config{DefaultLimit: 2, MaxResults: 3})
	for i := 0; i < 5; i++ {
		_, err := s.AddLink(ctx, fmt.Sprintf("https://%d.test", i), "limit", nil)
		require.NoError(t, err)
	}

	resp, err := s.Search(ctx, "limit", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)
	resp, err = s.Search(ctx, "limit", 100)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 3)
	assert.Equal(t, 5, resp.TotalHits)

	_, err = s.Search(ctx, "limit", -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLimit)
	_, err = s.Search(ctx, "   ", 5)
	assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)
}

func TestTracksEvents(t *testing.T) {
	ctx := context.Background()
	tr := &recordingTracker{}
	s, _ := newService(t, testConfig, WithTracker(tr))

	l, err := s.AddLink(ctx, "https://tracked.test", "tracked", []string{"a", "b"})
	require.NoError(t, err)
	_, err = s.Search(ctx, "tracked", 5)
	require.NoError(t, err)
	_, err = s.Search(ctx, "nothing", 5)
	require.NoError(t, err)
	require.NoError(t, s.DeleteLink(ctx, l.ID))

	events := tr.snapshot()
	require.Len(t, events, 4)
	added := events[0].(analytics.LinkEvent)
	assert.Equal(t, analytics.EventLinkAdded, added.Type)
	assert.Equal(t, 2, added.TagCount)
	assert.Equal(t, analytics.EventSearch, events[1].(analytics.SearchEvent).Type)
	assert.Equal(t, analytics.EventZeroResult, events[2].(analytics.SearchEvent).Type)
	assert.Equal(t, analytics.EventLinkDeleted, events[3].(analytics.LinkEvent).Type)
}

func TestSearchWaitsForSlot(t *testing.T) {
	cfg := testConfig
	cfg.MaxConcurrent = 1
	s, _ := newService(t, cfg)
	ctx := context.Background()
	_, err := s.AddLink(ctx, "https://example.com", "example site", nil)
	require.NoError(t, err)

	require.NoError(t, s.slots.Acquire(ctx, 1))
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Search(waitCtx, "example", 0)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s.slots.Release(1)
	resp, err := s.Search(ctx, "example", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 1)
}
