package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeSimple(t *testing.T) {
	tokens := Tokenize("Hello, World! https://Example.com/path?q=Go-Lang 42")
	assert.Equal(t, []Token{
		{Term: "hello", Position: 0},
		{Term: "world", Position: 1},
		{Term: "https", Position: 2},
		{Term: "example", Position: 3},
		{Term: "com", Position: 4},
		{Term: "path", Position: 5},
		{Term: "q", Position: 6},
		{Term: "go", Position: 7},
		{Term: "lang", Position: 8},
		{Term: "42", Position: 9},
	}, tokens)
}

func TestTokenizeDropsEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   "))
	assert.Empty(t, Tokenize("!!! ... ---"))
}

func TestTokenizeKeepsStopWordsInSimple(t *testing.T) {
	assert.Equal(t, []string{"the", "a", "and"}, Simple.Terms("The a AND"))
}

func TestTokenizeUnicode(t *testing.T) {
	assert.Equal(t, []string{"café", "straße", "日本"}, Simple.Terms("Café Straße 日本"))
}

func TestTokenizeDeterministic(t *testing.T) {
	text := "Distributed search engines process queries across multiple shards"
	for _, a := range []Analyzer{Simple, English} {
		assert.Equal(t, a.Tokenize(text), a.Tokenize(text))
	}
}

func TestEnglishAnalyzer(t *testing.T) {
	terms := English.Terms("The searching of links is running")
	assert.Equal(t, []string{"search", "link", "run"}, terms)

	// query and index time agree on the stemmed form
	assert.Equal(t, English.Terms("searches"), English.Terms("searching"))
}

func TestEnglishPositionsAreDense(t *testing.T) {
	tokens := English.Tokenize("the quick fox")
	require.Len(t, tokens, 2)
	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 1, tokens[1].Position)
}

func TestParseAnalyzer(t *testing.T) {
	a, err := ParseAnalyzer("")
	require.NoError(t, err)
	assert.Equal(t, Simple, a)

	a, err = ParseAnalyzer("English")
	require.NoError(t, err)
	assert.Equal(t, English, a)

	_, err = ParseAnalyzer("klingon")
	assert.Error(t, err)
}
