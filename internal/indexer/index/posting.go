package index

// Posting records that a term occurs in a document, with its frequency.
type Posting struct {
	DocID     uint64 `json:"d"`
	Frequency uint32 `json:"f"`
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

// TermEntry is one row of a field's term dictionary.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// StoredDoc holds the literal stored values of a document keyed by field
// name.
type StoredDoc map[string][]string

// First returns the first value of field, or "".
func (d StoredDoc) First(field string) string {
	if vals := d[field]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
