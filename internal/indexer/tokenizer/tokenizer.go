// Package tokenizer provides text tokenisation for the search engine.
// The same Analyzer must be used at index time and at query time: terms
// match by exact string equality, so any drift between the two silently
// loses recall.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/english"
)

// Analyzer names a normalisation chain. It is persisted with the index.
type Analyzer string

const (
	// Simple lower-cases and splits on non-alphanumeric boundaries.
	Simple Analyzer = "simple"
	// English additionally drops stop-words and applies the Snowball stemmer.
	English Analyzer = "english"
)

// ParseAnalyzer resolves a configured analyzer name. The empty string
// selects Simple.
func ParseAnalyzer(name string) (Analyzer, error) {
	switch Analyzer(strings.ToLower(name)) {
	case "", Simple:
		return Simple, nil
	case English:
		return English, nil
	default:
		return "", fmt.Errorf("unknown analyzer %q", name)
	}
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize applies the Simple analyzer: lower-case, split on anything that
// is not a letter or digit, drop empty tokens.
func Tokenize(text string) []Token {
	return Simple.Tokenize(text)
}

// Tokenize breaks text into Tokens using the analyzer's chain.
func (a Analyzer) Tokenize(text string) []Token {
	words := split(text)
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if a == English {
			if len(word) < 2 {
				continue
			}
			if _, isStop := stopWords[word]; isStop {
				continue
			}
			word = stem(word)
			if word == "" {
				continue
			}
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: len(tokens),
		})
	}
	return tokens
}

// Terms is Tokenize without positions.
func (a Analyzer) Terms(text string) []string {
	tokens := a.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

func split(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// stem reduces word with the Snowball English (Porter2) stemmer.
func stem(word string) string {
	env := snowballstem.NewEnv(word)
	english.Stem(env)
	return env.Current()
}
