// Package repository declares the storage contracts the rest of the
// application depends on. Implementations live in sub-packages (sqlite,
// bleveindex) so services and tests only ever see these interfaces.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sakif/snippet-catalog/internal/model"
)

// SnippetQuery is a predicate + ordering + limit over snippets.
//
// Zero-valued fields are "no constraint":
//   - IDs: restrict to this identifier set (nil = all snippets; an empty
//     non-nil slice matches nothing).
//   - Languages: case-insensitive, OR across the list.
//   - Tags: exact names, AND across the list.
//   - CreatedAfter: inclusive lower bound on created_at.
//   - Limit: 0 = unbounded.
type SnippetQuery struct {
	IDs          []string
	Languages    []string
	Tags         []string
	CreatedAfter *time.Time
	OrderBy      model.SortField
	Desc         bool
	Limit        int
}

// Field names a snippet column that can be listed for suggestions.
type Field string

const (
	FieldTitle    Field = "title"
	FieldLanguage Field = "language"
)

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error

	// FindSnippets returns hydrated snippets (tags included) matching q.
	FindSnippets(ctx context.Context, q SnippetQuery) ([]model.Snippet, error)
	// DistinctValues lists distinct values of field starting with prefix
	// (case-insensitive). An empty prefix lists everything.
	DistinctValues(ctx context.Context, field Field, prefix string, limit int) ([]string, error)
	// TagCounts lists tags whose name starts with prefix, with the number of
	// snippets carrying each, most used first.
	TagCounts(ctx context.Context, prefix string, limit int) ([]model.TagCount, error)
}

// TextIndex is a full-text index over snippet title, description and code.
// Match returns snippet ids in relevance order, at most limit of them.
type TextIndex interface {
	Match(ctx context.Context, query string, limit int) ([]string, error)
}

// SnippetIndexer keeps a TextIndex in sync with snippet writes. Indexes that
// the store maintains itself (FTS5 triggers) implement it as a no-op.
type SnippetIndexer interface {
	Index(ctx context.Context, snippet *model.Snippet) error
	Remove(ctx context.Context, id string) error
}

type HistoryRepository interface {
	// Record appends a history entry and bumps the query's stats counter in
	// a single transaction.
	Record(ctx context.Context, query string, filters json.RawMessage, resultCount int) (*model.HistoryEntry, error)
	Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	Popular(ctx context.Context, limit int) ([]model.StatsEntry, error)
	DeleteOne(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
}
