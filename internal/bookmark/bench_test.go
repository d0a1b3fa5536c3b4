package bookmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
)

var benchTopics = []string{"distributed", "search", "analytics", "indexing", "caching", "ranking", "sharding", "streaming"}

func benchIndex(b *testing.B, docs int) *Index {
	b.Helper()
	ctx := context.Background()
	idx, err := New(ctx, config.Default())
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { idx.Close() })
	for i := 0; i < docs; i++ {
		t1, t2 := benchTopics[i%len(benchTopics)], benchTopics[(i*3+1)%len(benchTopics)]
		if _, err := idx.Add(fmt.Sprintf("https://%s.test/%d", t1, i), t1+" notes about "+t2, []string{t1, t2}); err != nil {
			b.Fatal(err)
		}
		// Several segments, like a service that commits in batches.
		if i%1000 == 999 {
			if err := idx.Commit(ctx); err != nil {
				b.Fatal(err)
			}
		}
	}
	if err := idx.Commit(ctx); err != nil {
		b.Fatal(err)
	}
	return idx
}

// BenchmarkAddCommit measures indexing throughput including the commit that
// encodes and persists each 100-bookmark segment.
func BenchmarkAddCommit(b *testing.B) {
	ctx := context.Background()
	idx, err := New(ctx, config.Default())
	if err != nil {
		b.Fatal(err)
	}
	defer idx.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Add(fmt.Sprintf("https://bench.test/%d", i), "a benchmark bookmark with a handful of words", []string{"bench"}); err != nil {
			b.Fatal(err)
		}
		if i%100 == 99 {
			if err := idx.Commit(ctx); err != nil {
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkSearch measures query latency for queries of varying shape over
// 10 000 bookmarks.
func BenchmarkSearch(b *testing.B) {
	idx := benchIndex(b, 10000)
	queries := []struct {
		name  string
		query string
	}{
		{"single", "search"},
		{"two_terms", "distributed search"},
		{"required", "+search +ranking"},
		{"excluded", "search -caching"},
		{"field", "tags:sharding"},
		{"phrase", `"notes about"`},
		{"long", "distributed search analytics indexing caching ranking sharding streaming"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := idx.Search(context.Background(), q.query, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSearchParallel measures concurrent read throughput.
func BenchmarkSearchParallel(b *testing.B) {
	idx := benchIndex(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := idx.Search(context.Background(), "distributed search", 10); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
