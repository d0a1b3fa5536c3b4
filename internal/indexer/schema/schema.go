// Package schema declares the fixed set of text fields an index accepts.
// Fields are resolved once, when the schema is built, into Field handles;
// documents and queries carry handles rather than re-resolving names.
package schema

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
)

// Field is a typed handle to a schema field. The zero value is invalid.
type Field struct {
	id   int
	name string
}

// ID is the field's position in its schema.
func (f Field) ID() int { return f.id }

// Name returns the declared field name.
func (f Field) Name() string { return f.name }

// Valid reports whether f was produced by a schema.
func (f Field) Valid() bool { return f.name != "" }

func (f Field) String() string { return f.name }

// FieldOptions are the per-field flags.
type FieldOptions struct {
	Indexed     bool `json:"indexed"`
	Stored      bool `json:"stored"`
	MultiValued bool `json:"multi_valued"`
}

// Entry is the serialisable description of one field.
type Entry struct {
	Name string `json:"name"`
	FieldOptions
}

// Schema is immutable once built.
type Schema struct {
	entries []Entry
	byName  map[string]int
}

// Builder accumulates field declarations. The first error is reported by
// Build.
type Builder struct {
	entries []Entry
	seen    map[string]struct{}
	err     error
}

func NewBuilder() *Builder {
	return &Builder{seen: make(map[string]struct{})}
}

// AddTextField declares a text field and returns its handle.
func (b *Builder) AddTextField(name string, opts FieldOptions) Field {
	if b.err != nil {
		return Field{}
	}
	if name == "" {
		b.err = apperrors.Wrap(apperrors.ErrSchema, nil, "field name must not be empty")
		return Field{}
	}
	if _, dup := b.seen[name]; dup {
		b.err = apperrors.Wrap(apperrors.ErrSchema, nil, "duplicate field %q", name)
		return Field{}
	}
	b.seen[name] = struct{}{}
	b.entries = append(b.entries, Entry{Name: name, FieldOptions: opts})
	return Field{id: len(b.entries) - 1, name: name}
}

// Build freezes the declared fields.
func (b *Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	return FromEntries(b.entries)
}

// FromEntries rebuilds a schema from its serialised form.
func FromEntries(entries []Entry) (*Schema, error) {
	if len(entries) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrSchema, nil, "schema has no fields")
	}
	s := &Schema{
		entries: make([]Entry, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	copy(s.entries, entries)
	for i, e := range s.entries {
		if e.Name == "" {
			return nil, apperrors.Wrap(apperrors.ErrSchema, nil, "field %d has no name", i)
		}
		if _, dup := s.byName[e.Name]; dup {
			return nil, apperrors.Wrap(apperrors.ErrSchema, nil, "duplicate field %q", e.Name)
		}
		s.byName[e.Name] = i
	}
	return s, nil
}

// Field resolves a name to its handle.
func (s *Schema) Field(name string) (Field, error) {
	id, ok := s.byName[name]
	if !ok {
		return Field{}, apperrors.Wrap(apperrors.ErrSchema, nil, "unknown field %q", name)
	}
	return Field{id: id, name: name}, nil
}

// Entry returns the options for f, rejecting handles that do not belong to
// this schema.
func (s *Schema) Entry(f Field) (Entry, error) {
	if !f.Valid() || f.id < 0 || f.id >= len(s.entries) || s.entries[f.id].Name != f.name {
		return Entry{}, apperrors.Wrap(apperrors.ErrSchema, nil, "field %q is not part of the schema", f.name)
	}
	return s.entries[f.id], nil
}

// Fields returns every field handle in declaration order.
func (s *Schema) Fields() []Field {
	fields := make([]Field, len(s.entries))
	for i, e := range s.entries {
		fields[i] = Field{id: i, name: e.Name}
	}
	return fields
}

// IndexedFields returns the handles of fields flagged Indexed.
func (s *Schema) IndexedFields() []Field {
	var fields []Field
	for i, e := range s.entries {
		if e.Indexed {
			fields = append(fields, Field{id: i, name: e.Name})
		}
	}
	return fields
}

func (s *Schema) NumFields() int { return len(s.entries) }

// Entries returns a copy of the serialisable field list.
func (s *Schema) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Equal reports whether both schemas declare the same fields in the same
// order with the same options.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.entries) != len(o.entries) {
		return false
	}
	for i := range s.entries {
		if s.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	return fmt.Sprintf("schema%v", s.entries)
}
