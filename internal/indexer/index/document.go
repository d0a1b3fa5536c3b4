package index

import "github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/schema"

// FieldValue is a single text value for a field.
type FieldValue struct {
	Field schema.Field
	Value string
}

// Document is the caller's unit of indexing. It is handed to the writer by
// Add and must not be modified afterwards.
type Document struct {
	values []FieldValue
}

func NewDocument() *Document {
	return &Document{}
}

// AddText appends one value for f. Multi-valued fields take repeated calls.
func (d *Document) AddText(f schema.Field, value string) *Document {
	d.values = append(d.values, FieldValue{Field: f, Value: value})
	return d
}

// Values returns the field values in insertion order.
func (d *Document) Values() []FieldValue {
	return d.values
}

// Len returns the number of field values.
func (d *Document) Len() int {
	return len(d.values)
}
