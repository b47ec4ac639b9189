package model

import (
	"encoding/json"
	"time"
)

// DateRange limits results to snippets created after a relative point in time.
type DateRange string

const (
	DateRangeAll     DateRange = "all"
	DateRangeToday   DateRange = "today"
	DateRangeWeek    DateRange = "week"
	DateRangeMonth   DateRange = "month"
	DateRangeQuarter DateRange = "quarter"
)

// SortField is the snippet timestamp results are ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
)

// SortOrder is the direction of a SortField.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FilterSpec is the structured part of a search request.
//
// Every field is optional. The zero value means "no constraint" and the
// default ordering (createdAt, desc).
//
//   - Languages: OR, a snippet matches if its language is any of them.
//   - Tags: AND, a snippet matches only if it carries every listed tag.
type FilterSpec struct {
	Languages []string  `json:"languages,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	DateRange DateRange `json:"dateRange,omitempty"`
	SortBy    SortField `json:"sortBy,omitempty"`
	SortOrder SortOrder `json:"sortOrder,omitempty"`
}

// IsZero reports whether no filter or sort was requested.
func (f FilterSpec) IsZero() bool {
	return len(f.Languages) == 0 && len(f.Tags) == 0 &&
		(f.DateRange == "" || f.DateRange == DateRangeAll) &&
		f.SortBy == "" && f.SortOrder == ""
}

// HistoryEntry records one executed search. Rows are append-only: they are
// deleted (one or all) but never updated.
//
// Filters is the serialized FilterSpec snapshot at the time of the search and
// is treated as opaque JSON. It is null when the search had no filters.
type HistoryEntry struct {
	ID          string          `json:"id"`
	Query       string          `json:"query"`
	Filters     json.RawMessage `json:"filters"`
	ResultCount int             `json:"resultCount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// StatsEntry is the aggregated popularity of one exact query string.
// SearchCount only ever grows, through an atomic upsert-increment.
type StatsEntry struct {
	ID             string    `json:"id"`
	Query          string    `json:"query"`
	SearchCount    int       `json:"searchCount"`
	LastSearchedAt time.Time `json:"lastSearchedAt"`
}

// SuggestionType labels the category a suggestion came from.
type SuggestionType string

const (
	SuggestionTitle    SuggestionType = "title"
	SuggestionTag      SuggestionType = "tag"
	SuggestionLanguage SuggestionType = "language"
)

// SuggestionItem is one type-ahead candidate. Count is only set for tags.
type SuggestionItem struct {
	Type  SuggestionType `json:"type"`
	Text  string         `json:"text"`
	Count *int           `json:"count,omitempty"`
}

// HighlightedFields holds display-only copies of snippet fields with matches
// wrapped in markers. The snippet itself is never modified.
type HighlightedFields struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SearchHit is a hydrated snippet plus optional highlight decoration.
// Embedding keeps the snippet's JSON fields at the top level.
type SearchHit struct {
	Snippet
	Highlight *HighlightedFields `json:"highlight,omitempty"`
}
