package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/service"
)

// SnippetStore is the CRUD side of the catalog.
type SnippetStore interface {
	Create(ctx context.Context, in service.SnippetInput) (*model.Snippet, error)
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	Update(ctx context.Context, id string, in service.SnippetInput) (*model.Snippet, error)
	Delete(ctx context.Context, id string) error
}

// SnippetHandler manages CRUD operations for code snippets.
//
// Listing goes through the search pipeline, so GET /api/snippets accepts
// the same q/tag/tags/languages parameters as /api/search and returns the
// same shape.
type SnippetHandler struct {
	snippets SnippetStore
	search   Searcher
	logger   *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(snippets SnippetStore, s Searcher, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, search: s, logger: logger}
}

// HandleList lists snippets, newest first, optionally narrowed.
//
// HTTP: GET /api/snippets?q=&tag=
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	respondSearch(w, r, h.search, h.logger, req)
}

// HandleGet returns one snippet.
//
// HTTP: GET /api/snippets/{id}
//
// URL PARAMETERS:
// chi.URLParam(r, "id") extracts {id} from the matched route pattern.
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		logFailure(h.logger, r, "get snippet failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY:
//
//	{"title": "React hooks", "code": "...", "language": "javascript",
//	 "description": "...", "tutorial": "...", "tags": ["react", "basic"]}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), in)
	if err != nil {
		logFailure(h.logger, r, "create snippet failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleUpdate replaces a snippet's fields. Omitting "tags" keeps the
// current tags; "tags": [] removes them.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		logFailure(h.logger, r, "update snippet failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		logFailure(h.logger, r, "delete snippet failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
