package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultTopN is the number of chunks returned when a query does not ask for a count
const DefaultTopN = 5

// Visibility restricts results to public or private documents
type Visibility string

const (
	VisibilityAny     Visibility = ""
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility maps the "public" query parameter onto a Visibility.
// "true" selects public documents, "false" private ones, empty means no restriction.
func ParseVisibility(param string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(param)) {
	case "":
		return VisibilityAny, nil
	case "true":
		return VisibilityPublic, nil
	case "false":
		return VisibilityPrivate, nil
	default:
		return VisibilityAny, fmt.Errorf("%w: public must be 'true' or 'false', got %q", ErrInvalidInput, param)
	}
}

// Principal is the caller a query runs on behalf of
type Principal struct {
	UserID  string `json:"user_id"`
	IsStaff bool   `json:"is_staff"`
}

// AccessFilter decides which documents' chunks may be ranked for a query
type AccessFilter struct {
	// AllDocuments skips the ownership check (staff)
	AllDocuments bool
	// Owner sees their own documents in addition to public ones
	Owner string
	// DocumentSlugs limits the search to these documents when non-empty
	DocumentSlugs []string
	Visibility    Visibility
}

// NewAccessFilter builds the filter for a principal and search options
func NewAccessFilter(p Principal, opts SearchOptions) AccessFilter {
	return AccessFilter{
		AllDocuments:  p.IsStaff,
		Owner:         p.UserID,
		DocumentSlugs: opts.DocumentSlugs,
		Visibility:    opts.Visibility,
	}
}

// Allows reports whether chunks of doc may be returned under this filter
func (f AccessFilter) Allows(doc *Document) bool {
	if doc == nil {
		return false
	}
	if !f.AllDocuments && !doc.IsPublic && (f.Owner == "" || doc.Owner != f.Owner) {
		return false
	}
	if len(f.DocumentSlugs) > 0 && !slices.Contains(f.DocumentSlugs, doc.Slug) {
		return false
	}
	switch f.Visibility {
	case VisibilityPublic:
		return doc.IsPublic
	case VisibilityPrivate:
		return !doc.IsPublic
	}
	return true
}

// SearchOptions configures a similarity query
type SearchOptions struct {
	TopN          int        `json:"top_n"`
	DocumentSlugs []string   `json:"documents,omitempty"`
	Visibility    Visibility `json:"visibility,omitempty"`
}

// DefaultSearchOptions returns sensible defaults
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{TopN: DefaultTopN}
}

// ScoredChunk is a ranked chunk and its cosine distance to the query (lower is closer)
type ScoredChunk struct {
	Chunk    *Chunk  `json:"chunk"`
	Distance float64 `json:"distance"`
}

// SearchResult is the outcome of a similarity query
type SearchResult struct {
	Query   string        `json:"query"`
	Results []ScoredChunk `json:"results"`
	Took    time.Duration `json:"took"`
}
