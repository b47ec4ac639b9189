package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

const (
	// DefaultListLimit applies to searches without a query: the plain
	// "browse the catalog" listing.
	DefaultListLimit = 50
	MaxResultLimit   = 500
)

// SnippetStore is the part of the snippet repository search reads from.
type SnippetStore interface {
	FindSnippets(ctx context.Context, q repository.SnippetQuery) ([]model.Snippet, error)
	DistinctValues(ctx context.Context, field repository.Field, prefix string, limit int) ([]string, error)
	TagCounts(ctx context.Context, prefix string, limit int) ([]model.TagCount, error)
}

// Request is one search: free text plus structured filters.
type Request struct {
	Query     string
	Filters   model.FilterSpec
	Limit     int  // 0 = default (50 without a query, all matches with one)
	Highlight bool // decorate title and description with matches
}

type Result struct {
	Hits []model.SearchHit
	// Keywords are the highlight tokens extracted from the query.
	Keywords []string
}

// Service runs searches and suggestions.
type Service struct {
	store       SnippetStore
	engine      *Engine
	highlighter *Highlighter
	history     HistorySink
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires the search pipeline. history may be nil, in which case
// searches are not recorded.
func NewService(store SnippetStore, engine *Engine, highlighter *Highlighter, history HistorySink, logger *slog.Logger) *Service {
	if highlighter == nil {
		highlighter = NewHighlighter("", "")
	}
	return &Service{
		store:       store,
		engine:      engine,
		highlighter: highlighter,
		history:     history,
		logger:      logger,
		now:         time.Now,
	}
}

// Search runs the full pipeline for one request.
//
// KEY CONCEPTS:
//
//  1. TWO PATHS:
//     Without a query the filters alone drive one store read, newest first
//     by default. With a query the text index picks and ranks candidates
//     first, then the store applies the filters to that id set.
//
//  2. RELEVANCE ORDER WINS UNLESS ASKED OTHERWISE:
//     With a query and no explicit sortBy/sortOrder, results come back in
//     the index's ranking. An explicit sort replaces it.
//
//  3. HISTORY IS FIRE-AND-FORGET:
//     A successful search with a query is handed to the recorder. The
//     response never waits for, or fails because of, that write.
//
// Errors: InvalidFilter (validation) before any store access;
// MalformedQuery, Timeout or StoreUnavailable from the index or store.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	plan, err := Compose(req.Filters, s.now())
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(req.Query)
	limit := clampLimit(req.Limit, 0, MaxResultLimit)

	var snippets []model.Snippet
	if query == "" {
		plan.Query.Limit = limit
		if plan.Query.Limit == 0 {
			plan.Query.Limit = DefaultListLimit
		}
		snippets, err = s.store.FindSnippets(ctx, plan.Query)
		if err != nil {
			return nil, storeError(ctx, "search", err)
		}
	} else {
		snippets, err = s.matchAndFilter(ctx, query, plan, limit)
		if err != nil {
			if errors.Is(err, apperror.ErrMalformedQuery) {
				s.logger.Warn("malformed search query", slog.String("query", query))
			}
			return nil, err
		}
	}

	result := &Result{
		Hits:     make([]model.SearchHit, len(snippets)),
		Keywords: Keywords(query),
	}
	for i := range snippets {
		result.Hits[i].Snippet = snippets[i]
		if req.Highlight {
			result.Hits[i].Highlight = s.highlighter.Fields(&snippets[i], result.Keywords)
		}
	}

	if query != "" && s.history != nil {
		s.history.Enqueue(RecordRequest{
			Query:       query,
			Filters:     FilterSnapshot(req.Filters),
			ResultCount: len(snippets),
		})
	}

	s.logger.Debug("search completed",
		slog.String("query", query),
		slog.Int("results", len(snippets)),
	)
	return result, nil
}

func (s *Service) matchAndFilter(ctx context.Context, query string, plan Plan, limit int) ([]model.Snippet, error) {
	ids, err := s.engine.Match(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Snippet{}, nil
	}

	plan.Query.IDs = ids
	snippets, err := s.store.FindSnippets(ctx, plan.Query)
	if err != nil {
		return nil, storeError(ctx, "search", err)
	}

	if !plan.ExplicitSort {
		rank := make(map[string]int, len(ids))
		for i, id := range ids {
			rank[id] = i
		}
		sort.SliceStable(snippets, func(i, j int) bool {
			return rank[snippets[i].ID] < rank[snippets[j].ID]
		})
	}

	if limit > 0 && len(snippets) > limit {
		snippets = snippets[:limit]
	}
	return snippets, nil
}

// storeError classifies a failed store read: our own deadline is a timeout,
// a caller cancellation passes through, anything else is retryable.
func storeError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperror.Timeout(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperror.StoreUnavailable(op, err)
}
