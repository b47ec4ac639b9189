package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/auth"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/search"
)

// WarningHeader carries non-fatal search problems. A query the index can't
// parse still answers 200 with an empty list, flagged here.
const (
	WarningHeader    = "X-Search-Warning"
	WarningMalformed = "malformed-query"
)

// Searcher is the read side of the search service.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]model.SuggestionItem, error)
	Metadata(ctx context.Context) (*search.Metadata, error)
}

// HistoryTracker is the search history and stats store.
type HistoryTracker interface {
	Record(ctx context.Context, query string, filters json.RawMessage, resultCount int) (*model.HistoryEntry, error)
	Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	Popular(ctx context.Context, limit int) ([]model.StatsEntry, error)
	DeleteOne(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
}

// SearchHandler serves /api/search/* and /api/metadata.
//
// None of these routes require a login: reading the catalog is public, and
// history belongs to the single owner anyway.
type SearchHandler struct {
	search  Searcher
	history HistoryTracker
	logger  *slog.Logger
}

func NewSearchHandler(s Searcher, history HistoryTracker, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: s, history: history, logger: logger}
}

// HandleSearch runs a full search.
//
// HTTP: GET /api/search?q=&languages=a,b&tags=x,y&dateRange=&sortBy=&sortOrder=&limit=&highlight=true
//
// RESPONSE: [SearchHit, ...]; each hit is a snippet plus an optional
// "highlight" object with <mark>-wrapped title and description.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	respondSearch(w, r, h.search, h.logger, req)
}

// respondSearch runs req and writes the hits. Shared with the legacy
// snippet listing.
func respondSearch(w http.ResponseWriter, r *http.Request, s Searcher, logger *slog.Logger, req search.Request) {
	result, err := s.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, apperror.ErrMalformedQuery) {
			w.Header().Set(WarningHeader, WarningMalformed)
			writeJSON(w, http.StatusOK, list[model.SearchHit](nil))
			return
		}
		logFailure(logger, r, "search failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list(result.Hits))
}

// searchRequest builds a search.Request from query parameters.
func searchRequest(r *http.Request) (search.Request, error) {
	q := r.URL.Query()

	spec, err := search.ParseFilter(search.RawFilter{
		Languages: q.Get("languages"),
		Tags:      q.Get("tags"),
		Tag:       q.Get("tag"),
		DateRange: q.Get("dateRange"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		return search.Request{}, err
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		return search.Request{}, err
	}

	highlight := false
	if raw := q.Get("highlight"); raw != "" {
		highlight, err = strconv.ParseBool(raw)
		if err != nil {
			return search.Request{}, apperror.ValidationFailed("highlight", "highlight must be true or false")
		}
	}

	return search.Request{
		Query:     q.Get("q"),
		Filters:   spec,
		Limit:     limit,
		Highlight: highlight,
	}, nil
}

// HandleSuggestions returns type-ahead candidates.
//
// HTTP: GET /api/search/suggestions?q=&limit=
func (h *SearchHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	items, err := h.search.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		logFailure(h.logger, r, "suggestions failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list(items))
}

// HandleStats returns the most searched queries.
//
// HTTP: GET /api/search/stats?limit=
func (h *SearchHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.history.Popular(r.Context(), limit)
	if err != nil {
		logFailure(h.logger, r, "stats failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list(stats))
}

// HandleHistory returns the most recent searches.
//
// HTTP: GET /api/search/history?limit=
func (h *SearchHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		logFailure(h.logger, r, "history failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list(entries))
}

type recordRequest struct {
	Query       string          `json:"query"`
	Filters     json.RawMessage `json:"filters,omitempty"`
	ResultCount int             `json:"resultCount"`
}

// HandleRecordHistory records a search explicitly. Clients that ran a
// search some other way (a cached result, an offline UI) use this to keep
// the history honest.
//
// HTTP: POST /api/search/history
// REQUEST BODY: {"query": "react", "filters": {...}, "resultCount": 3}
func (h *SearchHandler) HandleRecordHistory(w http.ResponseWriter, r *http.Request) {
	var body recordRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.history.Record(r.Context(), body.Query, body.Filters, body.ResultCount); err != nil {
		logFailure(h.logger, r, "record history failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HandleDeleteHistory removes one entry (?id=) or, without an id, the whole
// history. Stats are never touched.
//
// HTTP: DELETE /api/search/history[?id=]
func (h *SearchHandler) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	var err error
	if r.URL.Query().Has("id") {
		err = h.history.DeleteOne(r.Context(), r.URL.Query().Get("id"))
	} else {
		err = h.history.ClearAll(r.Context())
	}
	if err != nil {
		logFailure(h.logger, r, "delete history failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HandleMetadata lists every language and tag in the catalog.
//
// HTTP: GET /api/metadata
func (h *SearchHandler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.search.Metadata(r.Context())
	if err != nil {
		logFailure(h.logger, r, "metadata failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

type successResponse struct {
	Success bool `json:"success"`
}

// logFailure logs unexpected errors. Client mistakes (validation, not
// found) are the client's problem and stay at debug.
func logFailure(logger *slog.Logger, r *http.Request, msg string, err error) {
	level := slog.LevelError
	if errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrNotFound) {
		level = slog.LevelDebug
	}
	logger.LogAttrs(r.Context(), level, msg,
		slog.String("path", r.URL.Path),
		sessionAttr(r),
		slog.String("error", err.Error()),
	)
}

// sessionAttr names the owner session behind a request, so failed writes
// can be traced to a login. Public routes log "none".
func sessionAttr(r *http.Request) slog.Attr {
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		return slog.String("session", s.ID)
	}
	return slog.String("session", "none")
}
