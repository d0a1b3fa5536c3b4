package parser

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParser(t *testing.T, a tokenizer.Analyzer) (*Parser, *schema.Schema) {
	t.Helper()
	b := schema.NewBuilder()
	b.AddTextField("url", schema.FieldOptions{Indexed: true, Stored: true})
	b.AddTextField("description", schema.FieldOptions{Indexed: true, Stored: true})
	b.AddTextField("tags", schema.FieldOptions{Indexed: true, Stored: true, MultiValued: true})
	b.AddTextField("id", schema.FieldOptions{Stored: true})
	s, err := b.Build()
	require.NoError(t, err)
	p, err := New(s, a)
	require.NoError(t, err)
	return p, s
}

func TestParse(t *testing.T) {
	p, _ := newParser(t, tokenizer.Simple)
	all := "url,description,tags"

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"single term", "Example", all + ":example"},
		{"terms are optional", "example site", all + ":example " + all + ":site"},
		{"punctuation splits", "go.dev", all + ":go " + all + ":dev"},
		{"duplicates collapse", "alpha alpha", all + ":alpha"},
		{"plus requires", "+go lang", "+" + all + ":go " + all + ":lang"},
		{"minus excludes", "go -java", all + ":go -" + all + ":java"},
		{"NOT excludes", "go NOT java", all + ":go -" + all + ":java"},
		{"AND requires both sides", "go AND lang", "+" + all + ":go +" + all + ":lang"},
		{"OR is the default", "go OR lang", all + ":go " + all + ":lang"},
		{"lowercase operators are terms", "go and lang", all + ":go " + all + ":and " + all + ":lang"},
		{"field scope", "tags:golang", "tags:golang"},
		{"field scope with exclusion", "go -tags:draft", all + ":go -tags:draft"},
		{"unknown prefix is text", "https://go.dev", all + ":https " + all + ":go " + all + ":dev"},
		{"stored-only field is not a scope", "id:abc", all + ":id " + all + ":abc"},
		{"phrase terms are required", `"example site" news`, "+" + all + ":example +" + all + ":site " + all + ":news"},
		{"scoped phrase", `description:"go lang"`, "+description:go +description:lang"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
			assert.Equal(t, tt.query, q.Raw)
		})
	}
}

func TestParseErrors(t *testing.T) {
	p, _ := newParser(t, tokenizer.Simple)
	for _, query := range []string{"", "   ", "!!! ...", "-spam", "NOT spam", `"open quote`, "AND OR NOT"} {
		t.Run(query, func(t *testing.T) {
			_, err := p.Parse(query)
			assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)
		})
	}
}

func TestParseUsesAnalyzer(t *testing.T) {
	p, _ := newParser(t, tokenizer.English)
	q, err := p.Parse("the running links")
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "link"}, q.Terms())

	_, err = p.Parse("the of")
	assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)
}

func TestTerms(t *testing.T) {
	p, _ := newParser(t, tokenizer.Simple)
	q, err := p.Parse("go tags:go -java lang")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "lang"}, q.Terms())
}

func TestNewValidatesDefaultFields(t *testing.T) {
	_, s := newParser(t, tokenizer.Simple)
	id, err := s.Field("id")
	require.NoError(t, err)
	_, err = New(s, tokenizer.Simple, id)
	assert.ErrorIs(t, err, apperrors.ErrSchema)

	desc, err := s.Field("description")
	require.NoError(t, err)
	p, err := New(s, tokenizer.Simple, desc)
	require.NoError(t, err)
	q, err := p.Parse("go")
	require.NoError(t, err)
	assert.Equal(t, "description:go", q.String())
}
