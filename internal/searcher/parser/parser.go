// Package parser turns free text into a structured query over schema
// fields. Terms go through the same analyzer the index was built with.
//
// Grammar, informally:
//
//	query  = { clause | "AND" | "OR" | "NOT" }
//	clause = [ "+" | "-" ] [ field ":" ] ( word | '"' words '"' )
//
// Bare words are optional (OR). "+word", a word on either side of AND, and
// every word of a quoted phrase are required. "-word" and "NOT word" exclude.
package parser

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
)

// Occur says how a clause constrains matching documents.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Clause is one normalised term searched in one or more fields.
type Clause struct {
	Term   string
	Fields []schema.Field
	Occur  Occur
}

func (c Clause) String() string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name()
	}
	return fmt.Sprintf("%s%s:%s", c.Occur.prefix(), strings.Join(names, ","), c.Term)
}

// Query is the parsed form of a search string.
type Query struct {
	Raw     string
	Clauses []Clause
}

// Terms returns the distinct non-excluded terms in clause order.
func (q *Query) Terms() []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, c := range q.Clauses {
		if c.Occur == MustNot {
			continue
		}
		if _, ok := seen[c.Term]; ok {
			continue
		}
		seen[c.Term] = struct{}{}
		terms = append(terms, c.Term)
	}
	return terms
}

// String is a canonical rendering; equal strings mean equal queries.
func (q *Query) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Parser is bound to a schema, an analyzer and the fields that unscoped
// terms search.
type Parser struct {
	schema        *schema.Schema
	analyzer      tokenizer.Analyzer
	defaultFields []schema.Field
}

// New builds a parser. With no default fields every indexed field is
// searched. Default fields must be indexed fields of s.
func New(s *schema.Schema, analyzer tokenizer.Analyzer, defaultFields ...schema.Field) (*Parser, error) {
	if len(defaultFields) == 0 {
		defaultFields = s.IndexedFields()
	}
	for _, f := range defaultFields {
		entry, err := s.Entry(f)
		if err != nil {
			return nil, err
		}
		if !entry.Indexed {
			return nil, apperrors.Wrap(apperrors.ErrSchema, nil, "default field %q is not indexed", f.Name())
		}
	}
	if len(defaultFields) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrSchema, nil, "schema has no indexed fields")
	}
	return &Parser{
		schema:        s,
		analyzer:      analyzer,
		defaultFields: defaultFields,
	}, nil
}

// Parse builds a Query from text. It fails with ErrQuerySyntax when text
// yields no terms, when every clause is an exclusion, or when a quote is
// left open.
func (p *Parser) Parse(text string) (*Query, error) {
	words, err := lex(text)
	if err != nil {
		return nil, err
	}

	q := &Query{Raw: text}
	seen := make(map[string]struct{})
	mustNext, notNext := false, false
	lastStart := -1
	for _, w := range words {
		if !w.quoted {
			switch w.text {
			case "AND":
				// Promote the previous word's clauses unless they exclude.
				if lastStart >= 0 {
					for i := lastStart; i < len(q.Clauses); i++ {
						if q.Clauses[i].Occur == Should {
							q.Clauses[i].Occur = Must
						}
					}
				}
				mustNext = true
				continue
			case "OR":
				mustNext = false
				continue
			case "NOT":
				notNext = true
				continue
			}
		}

		occur := Should
		body := w.text
		switch {
		case strings.HasPrefix(body, "+"):
			occur = Must
			body = body[1:]
		case strings.HasPrefix(body, "-"):
			occur = MustNot
			body = body[1:]
		}
		fields := p.defaultFields
		if name, rest, ok := strings.Cut(body, ":"); ok && !strings.Contains(name, `"`) {
			if f, err := p.schema.Field(name); err == nil {
				if entry, _ := p.schema.Entry(f); entry.Indexed {
					fields = []schema.Field{f}
					body = rest
				}
			}
		}
		if strings.HasPrefix(body, `"`) {
			body = strings.Trim(body, `"`)
			if occur == Should {
				occur = Must
			}
		}
		if mustNext && occur == Should {
			occur = Must
		}
		if notNext {
			occur = MustNot
		}
		mustNext, notNext = false, false

		lastStart = len(q.Clauses)
		for _, term := range p.analyzer.Terms(body) {
			c := Clause{Term: term, Fields: fields, Occur: occur}
			key := c.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			q.Clauses = append(q.Clauses, c)
		}
	}

	if len(q.Clauses) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrQuerySyntax, nil, "query %q has no searchable terms", text)
	}
	positive := false
	for _, c := range q.Clauses {
		if c.Occur != MustNot {
			positive = true
			break
		}
	}
	if !positive {
		return nil, apperrors.Wrap(apperrors.ErrQuerySyntax, nil, "query %q only excludes terms", text)
	}
	return q, nil
}

type word struct {
	text   string
	quoted bool
}

// lex splits on whitespace, keeping double-quoted runs (and any +, - or
// field: prefix glued to them) together.
func lex(text string) ([]word, error) {
	var words []word
	var cur strings.Builder
	inQuote, quoted := false, false
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, word{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		quoted = false
	}
	for _, r := range text {
		switch {
		case r == '"':
			inQuote = !inQuote
			quoted = true
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, apperrors.Wrap(apperrors.ErrQuerySyntax, nil, "unterminated quote in %q", text)
	}
	flush()
	return words, nil
}
