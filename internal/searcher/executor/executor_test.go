package executor

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookmark struct {
	url  string
	desc string
	tags []string
}

type fixture struct {
	idx    *indexer.Index
	writer *indexer.Writer
	desc   schema.Field
	parser *parser.Parser
	exec   *Executor
}

// newFixture indexes docs, committing after every batch boundary listed in
// commitAfter (and once at the end).
func newFixture(t *testing.T, docs []bookmark, commitAfter ...int) *fixture {
	t.Helper()
	ctx := context.Background()
	b := schema.NewBuilder()
	url := b.AddTextField("url", schema.FieldOptions{Indexed: true, Stored: true})
	desc := b.AddTextField("description", schema.FieldOptions{Indexed: true, Stored: true})
	tags := b.AddTextField("tags", schema.FieldOptions{Indexed: true, Stored: true, MultiValued: true})
	s, err := b.Build()
	require.NoError(t, err)

	idx, err := indexer.Open(ctx, s, store.NewMemory(), indexer.Options{})
	require.NoError(t, err)
	w, err := idx.Writer()
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	boundaries := make(map[int]bool)
	for _, n := range commitAfter {
		boundaries[n] = true
	}
	for i, d := range docs {
		doc := index.NewDocument().AddText(url, d.url).AddText(desc, d.desc)
		for _, tag := range d.tags {
			doc.AddText(tags, tag)
		}
		_, err := w.Add(doc)
		require.NoError(t, err)
		if boundaries[i] {
			require.NoError(t, w.Commit(ctx))
		}
	}
	require.NoError(t, w.Commit(ctx))

	p, err := parser.New(s, idx.Analyzer())
	require.NoError(t, err)
	return &fixture{idx: idx, writer: w, desc: desc, parser: p, exec: New()}
}

func (f *fixture) search(t *testing.T, query string, limit int) *SearchResult {
	t.Helper()
	q, err := f.parser.Parse(query)
	require.NoError(t, err)
	res, err := f.exec.Execute(context.Background(), q, f.idx.Snapshot(), limit)
	require.NoError(t, err)
	return res
}

func docIDs(res *SearchResult) []uint64 {
	ids := make([]uint64, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.DocID
	}
	return ids
}

var catalog = []bookmark{
	{"https://example.com/", "Example site", []string{"example"}},
	{"https://go.dev/", "The Go programming language", []string{"golang", "programming"}},
	{"https://rust-lang.org/", "Rust programming language", []string{"rust", "programming"}},
	{"https://news.example.org/", "Daily tech news", []string{"news"}},
}

func TestExampleSite(t *testing.T) {
	f := newFixture(t, catalog)
	res := f.search(t, "example site", 10)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, uint64(0), res.Hits[0].DocID)
	assert.Equal(t, "https://example.com/", res.Hits[0].Stored.First("url"))
	assert.Equal(t, []string{"example"}, res.Hits[0].Stored["tags"])
	assert.Greater(t, res.Hits[0].Score, 0.0)
}

func TestRepeatedTermRanksFirst(t *testing.T) {
	f := newFixture(t, []bookmark{
		{"https://a.test/", "alpha", nil},
		{"https://b.test/", "alpha alpha", nil},
	})
	res := f.search(t, "alpha", 10)
	assert.Equal(t, []uint64{1, 0}, docIDs(res))
	assert.Greater(t, res.Hits[0].Score, res.Hits[1].Score)
}

func TestNoMatches(t *testing.T) {
	f := newFixture(t, catalog)
	res := f.search(t, "zzzznotfound", 10)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)
	assert.Equal(t, 0, res.TotalHits)
}

func TestEmptyIndex(t *testing.T) {
	f := newFixture(t, nil)
	res := f.search(t, "anything", 5)
	assert.Empty(t, res.Hits)
}

func TestInvalidLimit(t *testing.T) {
	f := newFixture(t, catalog)
	q, err := f.parser.Parse("go")
	require.NoError(t, err)
	for _, limit := range []int{0, -1} {
		_, err := f.exec.Execute(context.Background(), q, f.idx.Snapshot(), limit)
		assert.ErrorIs(t, err, apperrors.ErrInvalidLimit)
	}
}

func TestLimitTruncates(t *testing.T) {
	f := newFixture(t, catalog)
	res := f.search(t, "programming", 1)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, 2, res.TotalHits)
	// description and tags postings both count.
	assert.Equal(t, 4, res.TermStats["programming"])
}

func TestMultiValuedTags(t *testing.T) {
	f := newFixture(t, catalog)
	assert.Equal(t, []uint64{1}, docIDs(f.search(t, "tags:golang", 10)))
	assert.Equal(t, []uint64{2}, docIDs(f.search(t, "tags:rust", 10)))
}

func TestBooleanOperators(t *testing.T) {
	f := newFixture(t, catalog)
	assert.ElementsMatch(t, []uint64{1, 2}, docIDs(f.search(t, "programming language", 10)))
	assert.Equal(t, []uint64{2}, docIDs(f.search(t, "programming -golang", 10)))
	assert.Equal(t, []uint64{1}, docIDs(f.search(t, "programming AND go", 10)))
	assert.Equal(t, []uint64{1}, docIDs(f.search(t, "+go rust", 10)))
	assert.Equal(t, []uint64{3}, docIDs(f.search(t, `"tech news"`, 10)))
	assert.Empty(t, f.search(t, "+go +rust", 10).Hits)
}

func TestMoreTermsNeverLowerScore(t *testing.T) {
	f := newFixture(t, catalog)
	one := f.search(t, "programming", 10)
	two := f.search(t, "programming rust", 10)
	scores := make(map[uint64]float64)
	for _, h := range one.Hits {
		scores[h.DocID] = h.Score
	}
	for _, h := range two.Hits {
		if prev, ok := scores[h.DocID]; ok {
			assert.GreaterOrEqual(t, h.Score, prev)
		}
	}
}

func TestDeterministic(t *testing.T) {
	f := newFixture(t, catalog)
	first := f.search(t, "programming language news example", 10)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, f.search(t, "programming language news example", 10))
	}
}

func TestTiesBreakOnDocID(t *testing.T) {
	f := newFixture(t, []bookmark{
		{"https://x.test/", "same words", nil},
		{"https://y.test/", "same words", nil},
		{"https://z.test/", "same words", nil},
	})
	res := f.search(t, "same", 10)
	assert.Equal(t, []uint64{0, 1, 2}, docIDs(res))
	assert.Equal(t, res.Hits[0].Score, res.Hits[2].Score)
}

func TestSegmentationDoesNotChangeScores(t *testing.T) {
	single := newFixture(t, catalog)
	split := newFixture(t, catalog, 0, 2)
	require.Len(t, split.idx.Snapshot().Segments(), 3)

	for _, query := range []string{"programming", "example news", "language -rust"} {
		assert.Equal(t, single.search(t, query, 10).Hits, split.search(t, query, 10).Hits, query)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog)
	before := f.idx.Snapshot()

	_, err := f.writer.Add(index.NewDocument().AddText(f.desc, "more programming"))
	require.NoError(t, err)
	require.NoError(t, f.writer.Commit(ctx))

	q, err := f.parser.Parse("programming")
	require.NoError(t, err)
	old, err := f.exec.Execute(ctx, q, before, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, old.TotalHits)
	assert.Equal(t, before.Generation(), old.Generation)

	latest, err := f.exec.Execute(ctx, q, f.idx.Snapshot(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.TotalHits)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, catalog)
	q, err := f.parser.Parse("programming")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.exec.Execute(ctx, q, f.idx.Snapshot(), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

// dropStoredDoc rewrites an uncompressed segment blob so its stored block
// no longer holds docID while its postings still do.
func dropStoredDoc(t *testing.T, blob []byte, docID uint64) []byte {
	t.Helper()
	footer := blob[len(blob)-segment.FooterSize:]
	storedStart := binary.LittleEndian.Uint64(footer[8:16])
	storedSize := binary.LittleEndian.Uint64(footer[16:24])
	block := blob[storedStart : storedStart+storedSize]
	require.Zero(t, binary.LittleEndian.Uint32(block[4:8]), "stored block must be raw")

	var records []struct {
		ID     uint64          `json:"id"`
		Fields json.RawMessage `json:"fields"`
		Len    json.RawMessage `json:"len"`
	}
	require.NoError(t, json.Unmarshal(block[8:], &records))
	kept := records[:0]
	for _, r := range records {
		if r.ID != docID {
			kept = append(kept, r)
		}
	}
	require.Len(t, kept, len(records)-1)
	raw, err := json.Marshal(kept)
	require.NoError(t, err)

	out := append([]byte(nil), blob[:storedStart]...)
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(kept)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(raw)))
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = append(out, raw...)

	newFooter := make([]byte, segment.FooterSize)
	copy(newFooter, footer)
	binary.LittleEndian.PutUint32(newFooter[0:4], crc32.ChecksumIEEE(out))
	binary.LittleEndian.PutUint64(newFooter[16:24], uint64(8+len(raw)))
	return append(out, newFooter...)
}

func TestMissingStoredFieldsFailsSearch(t *testing.T) {
	ctx := context.Background()
	b := schema.NewBuilder()
	url := b.AddTextField("url", schema.FieldOptions{Indexed: true, Stored: true})
	desc := b.AddTextField("description", schema.FieldOptions{Indexed: true, Stored: true})
	s, err := b.Build()
	require.NoError(t, err)

	mem := store.NewMemory()
	idx, err := indexer.Open(ctx, s, mem, indexer.Options{})
	require.NoError(t, err)
	w, err := idx.Writer()
	require.NoError(t, err)
	_, err = w.Add(index.NewDocument().AddText(url, "https://a.test").AddText(desc, "alpha one"))
	require.NoError(t, err)
	_, err = w.Add(index.NewDocument().AddText(url, "https://b.test").AddText(desc, "alpha two"))
	require.NoError(t, err)
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.Close())

	names, err := mem.List(ctx, indexer.SegmentPrefix)
	require.NoError(t, err)
	require.Len(t, names, 1)
	blob, err := mem.Get(ctx, names[0])
	require.NoError(t, err)
	require.NoError(t, mem.Put(ctx, names[0], dropStoredDoc(t, blob, 0)))

	damaged, err := indexer.Open(ctx, s, mem, indexer.Options{})
	require.NoError(t, err)
	p, err := parser.New(s, damaged.Analyzer())
	require.NoError(t, err)
	q, err := p.Parse("alpha")
	require.NoError(t, err)

	res, err := New().Execute(ctx, q, damaged.Snapshot(), 10)
	assert.ErrorIs(t, err, apperrors.ErrSearch)
	assert.ErrorIs(t, err, segment.ErrDocNotFound)
	assert.Nil(t, res)
}
