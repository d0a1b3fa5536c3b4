package bookmark

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T, opts ...Option) *Index {
	t.Helper()
	b, err := New(context.Background(), config.Default(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestExampleSiteScenario(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)

	_, err := b.Add("https://example.com", "example site", []string{"demo"})
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	results, err := b.Search(ctx, "example", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com", results[0].URL)
	assert.Equal(t, "example site", results[0].Description)
	assert.Equal(t, []string{"demo"}, results[0].Tags)
	assert.GreaterOrEqual(t, results[0].Score, 0.0)
}

func TestDoubleOccurrenceRanksFirst(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)

	_, err := b.Add("https://one.test", "alpha", nil)
	require.NoError(t, err)
	double, err := b.Add("https://two.test", "alpha alpha", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	results, err := b.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, double, results[0].DocID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestNoMatchIsEmpty(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	_, err := b.Add("https://example.com", "example site", []string{"demo"})
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	results, err := b.Search(ctx, "zzzznotfound", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBlankQueryRejected(t *testing.T) {
	b := newIndex(t)
	for _, q := range []string{"", "   ", "!!!"} {
		_, err := b.Search(context.Background(), q, 10)
		assert.ErrorIs(t, err, apperrors.ErrQuerySyntax, "query %q", q)
	}
}

func TestInvalidLimit(t *testing.T) {
	b := newIndex(t)
	_, err := b.Search(context.Background(), "go", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLimit)
}

func TestRoundTripEveryTerm(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	id, err := b.Add("https://go.dev/doc", "Effective Go guide", []string{"golang", "docs"})
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	for _, term := range []string{"https", "go", "dev", "doc", "effective", "guide", "golang", "docs"} {
		results, err := b.Search(ctx, term, 10)
		require.NoError(t, err)
		require.Len(t, results, 1, "term %q", term)
		assert.Equal(t, id, results[0].DocID)
	}
}

func TestMultiValuedTags(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	id, err := b.Add("https://search.test", "a search engine", []string{"search", "google"})
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	results, err := b.Search(ctx, "google", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].DocID)
	assert.Equal(t, []string{"search", "google"}, results[0].Tags)
}

func TestDeterministic(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	for i := 0; i < 20; i++ {
		_, err := b.Add(fmt.Sprintf("https://site%d.test", i), "same words here", []string{"tie"})
		require.NoError(t, err)
	}
	require.NoError(t, b.Commit(ctx))

	first, err := b.Search(ctx, "same tie", 7)
	require.NoError(t, err)
	second, err := b.Search(ctx, "same tie", 7)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].DocID, first[i].DocID, "ties break by ascending doc id")
	}
}

func TestUncommittedNotVisible(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	_, err := b.Add("https://pending.test", "pending", nil)
	require.NoError(t, err)

	results, err := b.Search(ctx, "pending", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, b.Pending())

	require.NoError(t, b.Commit(ctx))
	results, err = b.Search(ctx, "pending", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 0, b.Pending())
}

func TestManualReloadPolicy(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Indexer.ReloadPolicy = "manual"
	b, err := New(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Add("https://a.test", "rust book", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	results, err := b.Search(ctx, "rust", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "manual reader still pinned to generation 0")

	assert.Equal(t, uint64(1), b.Reload())
	results, err = b.Search(ctx, "rust", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchDuringCommit(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	_, err := b.Add("https://base.test", "base document", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				results, err := b.Search(ctx, "document", 100)
				assert.NoError(t, err)
				assert.NotEmpty(t, results)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_, err := b.Add(fmt.Sprintf("https://n%d.test", i), "another document", nil)
		require.NoError(t, err)
		require.NoError(t, b.Commit(ctx))
	}
	wg.Wait()

	results, err := b.Search(ctx, "document", 100)
	require.NoError(t, err)
	assert.Len(t, results, 11)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []string{config.StorageLocal, config.StoragePebble, config.StorageSQLite} {
		t.Run(kind, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Kind = kind
			cfg.Storage.Path = t.TempDir()
			if kind == config.StorageSQLite {
				cfg.Storage.Path += "/index.db"
			}

			b, err := New(ctx, cfg)
			require.NoError(t, err)
			_, err = b.AddRecord(Record{ID: "link-1", URL: "https://go.dev", Description: "the go language", Tags: []string{"go"}})
			require.NoError(t, err)
			_, err = b.AddRecord(Record{ID: "link-2", URL: "https://rust-lang.org", Description: "the rust language", Tags: []string{"rust"}})
			require.NoError(t, err)
			require.NoError(t, b.Commit(ctx))
			before, err := b.Search(ctx, "language go", 10)
			require.NoError(t, err)
			require.NoError(t, b.Close())

			reopened, err := New(ctx, cfg)
			require.NoError(t, err)
			defer reopened.Close()
			after, err := reopened.Search(ctx, "language go", 10)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, "link-1", after[0].ID)

			id, err := reopened.Add("https://zig.dev", "zig", nil)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), id, "doc ids continue after reopen")
		})
	}
}

func TestInvalidUTF8Rejected(t *testing.T) {
	b := newIndex(t)
	for name, rec := range map[string]Record{
		"url":         {URL: "https://x.test/caf\xff"},
		"description": {URL: "https://x.test", Description: "caf\xff example"},
		"tag":         {URL: "https://x.test", Description: "ok", Tags: []string{"t\xfeg"}},
		"id":          {ID: "\xc3", URL: "https://x.test"},
	} {
		_, err := b.AddRecord(rec)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, name)
	}
	assert.Zero(t, b.Pending())
}

func TestNonASCIISurvivesReopen(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	b, err := New(ctx, config.Default(), WithStore(mem))
	require.NoError(t, err)
	_, err = b.AddRecord(Record{ID: "c", URL: "https://café.test/ü", Description: "café example", Tags: []string{"tëg"}})
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))
	before, err := b.Search(ctx, "example", 10)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened := newIndex(t, WithStore(mem))
	after, err := reopened.Search(ctx, "example", 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before, after)
	assert.Equal(t, "café example", after[0].Description)
	assert.Equal(t, []string{"tëg"}, after[0].Tags)
}

func TestSharedCacheSeparatesIndexes(t *testing.T) {
	ctx := context.Background()
	shared := cache.New(cache.NewLRUBackend(16, time.Minute), time.Minute)

	a := newIndex(t, WithStore(store.NewMemory()), WithCache(shared))
	_, err := a.Add("https://old.test", "golang tips", nil)
	require.NoError(t, err)
	require.NoError(t, a.Commit(ctx))
	got, err := a.Search(ctx, "golang", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://old.test", got[0].URL)

	b := newIndex(t, WithStore(store.NewMemory()), WithCache(shared))
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, a.Generation(), b.Generation()+1, "b has not committed yet")
	_, err = b.Add("https://new.test", "golang news", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))
	require.Equal(t, a.Generation(), b.Generation())

	got, err = b.Search(ctx, "golang", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://new.test", got[0].URL)
}

func TestIndexIDSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	b, err := New(ctx, config.Default(), WithStore(mem))
	require.NoError(t, err)
	_, err = b.Add("https://a.test", "a", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))
	id := b.ID()
	require.NoError(t, b.Close())

	assert.Equal(t, id, newIndex(t, WithStore(mem)).ID())
}

func TestUntaggedResultHasEmptyTags(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	_, err := b.Add("https://bare.test", "untagged bookmark", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	results, err := b.Search(ctx, "untagged", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].Tags)
	assert.Empty(t, results[0].Tags)

	raw, err := json.Marshal(results[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tags":[]`)
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	b := newIndex(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := b.AddRecord(Record{ID: "a", URL: "https://a.test", Description: "first", Tags: []string{"x", "y"}, CreatedAt: created})
	require.NoError(t, err)
	_, err = b.AddRecord(Record{ID: "b", URL: "https://b.test", Description: "second"})
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	var got []Record
	b.Records(func(_ uint64, rec Record) bool {
		got = append(got, rec)
		return true
	})
	require.Len(t, got, 2)
	assert.Equal(t, Record{ID: "a", URL: "https://a.test", Description: "first", Tags: []string{"x", "y"}, CreatedAt: created}, got[0])
	assert.True(t, got[1].CreatedAt.IsZero())
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, []string{}, got[1].Tags)
}

func TestFailedCommitKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	b := newIndex(t, WithStore(mem))

	_, err := b.Add("https://retry.test", "retry me", nil)
	require.NoError(t, err)
	mem.FailPuts("segments/")
	assert.ErrorIs(t, b.Commit(ctx), apperrors.ErrCommit)
	assert.Equal(t, uint64(0), b.Generation())
	assert.Equal(t, 1, b.Pending())

	mem.FailPuts("")
	require.NoError(t, b.Commit(ctx))
	results, err := b.Search(ctx, "retry", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCacheAndMetrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	c := cache.New(cache.NewLRUBackend(32, time.Minute), time.Minute)
	b := newIndex(t, WithCache(c), WithMetrics(m))

	_, err := b.Add("https://cache.test", "cached result", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))

	first, err := b.Query(ctx, "cached", 10)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	second, err := b.Query(ctx, "cached", 10)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Results, second.Results)

	// A commit moves the generation, so the next query misses.
	_, err = b.Add("https://cache2.test", "cached again", nil)
	require.NoError(t, err)
	require.NoError(t, b.Commit(ctx))
	third, err := b.Query(ctx, "cached", 10)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, third.Results, 2)

	_, err = b.Search(ctx, "", 10)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexGeneration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexSegments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))

	require.NoError(t, b.InvalidateCache(ctx))
	fourth, err := b.Query(ctx, "cached", 10)
	require.NoError(t, err)
	assert.False(t, fourth.Cached)
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Indexer.Analyzer = "klingon"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Storage.Compression = "brotli"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"go", "web"}, NormalizeTags([]string{" go ", "", "  ", "web"}))
	assert.Empty(t, NormalizeTags(nil))
}
