// Package validator checks ingestion requests against the catalog's limits
// before anything is queued, reporting every offending field at once.
package validator

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/links"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest returns a *ValidationError naming each invalid link
// field, or nil.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)
	switch n := len(req.Links); {
	case n == 0:
		errs["links"] = "at least one link is required"
	case n > ingestion.MaxBatch:
		errs["links"] = fmt.Sprintf("at most %d links per request", ingestion.MaxBatch)
	}
	for i, l := range req.Links {
		field := func(name string) string { return fmt.Sprintf("links[%d].%s", i, name) }
		url := strings.TrimSpace(l.URL)
		if url == "" {
			errs[field("url")] = "url is required"
		} else if len(url) > links.MaxURLLength {
			errs[field("url")] = fmt.Sprintf("url must be at most %d bytes", links.MaxURLLength)
		} else if !utf8.ValidString(url) {
			errs[field("url")] = "url must be valid UTF-8"
		}
		if len(l.Description) > links.MaxDescriptionLength {
			errs[field("description")] = fmt.Sprintf("description must be at most %d bytes", links.MaxDescriptionLength)
		} else if !utf8.ValidString(l.Description) {
			errs[field("description")] = "description must be valid UTF-8"
		}
		if len(l.Tags) > links.MaxTags {
			errs[field("tags")] = fmt.Sprintf("at most %d tags", links.MaxTags)
		}
		for _, t := range l.Tags {
			if len(t) > links.MaxTagLength {
				errs[field("tags")] = fmt.Sprintf("tags must be at most %d bytes", links.MaxTagLength)
				break
			}
			if !utf8.ValidString(t) {
				errs[field("tags")] = "tags must be valid UTF-8"
				break
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
