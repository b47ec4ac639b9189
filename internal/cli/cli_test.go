package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
)

type request struct {
	method string
	path   string
	query  url.Values
	auth   string
	body   map[string]any
}

// fakeAPI records the last request and answers with canned JSON.
type fakeAPI struct {
	mu   sync.Mutex
	last request
}

func (a *fakeAPI) lastRequest() request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.mu.Lock()
		api.last = request{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			auth:   r.Header.Get("Authorization"),
			body:   body,
		}
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/search" && r.URL.Query().Get("q") == "AND":
			w.Header().Set("X-Search-Warning", "malformed-query")
			_, _ = w.Write([]byte(`[]`))
		case r.URL.Path == "/api/search":
			_ = json.NewEncoder(w).Encode([]model.SearchHit{{Snippet: model.Snippet{
				ID: "s1", Title: "React Hooks", Language: "javascript",
				Tags: []model.Tag{{Name: "react"}, {Name: "hooks"}}, CreatedAt: now,
			}}})
		case r.URL.Path == "/api/search/suggestions":
			two := 2
			_ = json.NewEncoder(w).Encode([]model.SuggestionItem{
				{Type: model.SuggestionTitle, Text: "React Hooks"},
				{Type: model.SuggestionTag, Text: "react", Count: &two},
			})
		case r.URL.Path == "/api/search/history" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode([]model.HistoryEntry{{ID: "h1", Query: "react", ResultCount: 3, CreatedAt: now}})
		case r.URL.Path == "/api/search/history" && r.Method == http.MethodDelete:
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.URL.Path == "/api/search/stats":
			_ = json.NewEncoder(w).Encode([]model.StatsEntry{{ID: "p1", Query: "react", SearchCount: 7, LastSearchedAt: now}})
		case r.URL.Path == "/api/snippets" && r.Method == http.MethodPost:
			if r.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(model.Snippet{ID: "new1", Title: "Go maps"})
		case r.URL.Path == "/auth/login":
			if body["password"] != "letmein" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"invalid password"}`))
				return
			}
			_, _ = w.Write([]byte(`{"token":"tok-123"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":"resource not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

// run executes snippetctl with args against srv and returns stdout.
func run(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("SNIPPETS_SERVER", "")
	t.Setenv("SNIPPETS_TOKEN", "")

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestSearch_PassesFilters(t *testing.T) {
	api, srv := newFakeAPI(t)

	out, _, err := run(t, srv, "", "search", "react hooks",
		"--lang", "javascript,typescript", "--tag", "react", "--tag", "hooks",
		"--date", "week", "--sort", "updatedAt", "--order", "asc", "-n", "5")
	require.NoError(t, err)

	assert.Equal(t, "/api/search", api.lastRequest().path)
	assert.Equal(t, "react hooks", api.lastRequest().query.Get("q"))
	assert.Equal(t, "javascript,typescript", api.lastRequest().query.Get("languages"))
	assert.Equal(t, "react,hooks", api.lastRequest().query.Get("tags"))
	assert.Equal(t, "week", api.lastRequest().query.Get("dateRange"))
	assert.Equal(t, "updatedAt", api.lastRequest().query.Get("sortBy"))
	assert.Equal(t, "asc", api.lastRequest().query.Get("sortOrder"))
	assert.Equal(t, "5", api.lastRequest().query.Get("limit"))

	assert.Contains(t, out, "React Hooks")
	assert.Contains(t, out, "react, hooks")
	assert.Contains(t, out, "2025-03")
}

func TestSearch_NoQuerySendsNoQParam(t *testing.T) {
	api, srv := newFakeAPI(t)

	_, _, err := run(t, srv, "", "search")
	require.NoError(t, err)
	assert.False(t, api.lastRequest().query.Has("q"))
}

func TestSearch_MalformedWarning(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, errOut, err := run(t, srv, "", "search", "AND")
	require.NoError(t, err)
	assert.Contains(t, errOut, "warning: malformed-query")
	assert.Contains(t, out, "No snippets found.")
}

func TestSearch_JSON(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := run(t, srv, "", "search", "react", "--json")
	require.NoError(t, err)

	var hits []model.SearchHit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].ID)
}

func TestSuggest(t *testing.T) {
	api, srv := newFakeAPI(t)

	out, _, err := run(t, srv, "", "suggest", "rea", "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, "rea", api.lastRequest().query.Get("q"))
	assert.Equal(t, "3", api.lastRequest().query.Get("limit"))
	assert.Contains(t, out, "React Hooks")
	assert.Contains(t, out, "tag")
}

func TestHistory(t *testing.T) {
	t.Run("list by default", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		out, _, err := run(t, srv, "", "history")
		require.NoError(t, err)
		assert.Equal(t, http.MethodGet, api.lastRequest().method)
		assert.Contains(t, out, "h1")
	})

	t.Run("rm one", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		out, _, err := run(t, srv, "", "history", "rm", "h1")
		require.NoError(t, err)
		assert.Equal(t, http.MethodDelete, api.lastRequest().method)
		assert.Equal(t, "h1", api.lastRequest().query.Get("id"))
		assert.Contains(t, out, "Removed h1")
	})

	t.Run("clear all", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		out, _, err := run(t, srv, "", "history", "clear")
		require.NoError(t, err)
		assert.Equal(t, http.MethodDelete, api.lastRequest().method)
		assert.False(t, api.lastRequest().query.Has("id"))
		assert.Contains(t, out, "History cleared")
	})
}

func TestPopular(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := run(t, srv, "", "popular")
	require.NoError(t, err)
	assert.Contains(t, out, "react")
	assert.Contains(t, out, "7")
}

func TestAdd(t *testing.T) {
	t.Run("code from stdin with token", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		out, _, err := run(t, srv, "package main\n", "--token", "tok-123",
			"add", "--title", "Go maps", "--language", "go", "--tag", "basic")
		require.NoError(t, err)

		assert.Equal(t, "Bearer tok-123", api.lastRequest().auth)
		assert.Equal(t, "package main\n", api.lastRequest().body["code"])
		assert.Equal(t, "go", api.lastRequest().body["language"])
		assert.Equal(t, []any{"basic"}, api.lastRequest().body["tags"])
		assert.Contains(t, out, "Created new1")
	})

	t.Run("without token is unauthorized", func(t *testing.T) {
		_, srv := newFakeAPI(t)
		_, _, err := run(t, srv, "x", "add", "--title", "t", "--language", "go")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
	})

	t.Run("title is required", func(t *testing.T) {
		_, srv := newFakeAPI(t)
		_, _, err := run(t, srv, "x", "add", "--language", "go")
		require.Error(t, err)
	})
}

func TestLogin(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := run(t, srv, "letmein\n", "login")
	require.NoError(t, err)
	assert.Equal(t, "tok-123\n", out)

	_, _, err = run(t, srv, "wrong\n", "login")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
	assert.Equal(t, "invalid password", err.Error())
}

func TestHashPassword(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := run(t, srv, "s3cret\n", "hash-password")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, _, err = run(t, srv, "", "hash-password")
	assert.Error(t, err)
}

func TestAPIError_UnknownPath(t *testing.T) {
	_, srv := newFakeAPI(t)

	_, err := NewClient(srv.URL, "").Search(t.Context(), url.Values{"x": {"1"}})
	require.NoError(t, err)

	err = NewClient(srv.URL+"/nope", "").DeleteHistory(t.Context(), "h1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, 10, len([]rune(truncate("a very long title indeed", 10))))
}
