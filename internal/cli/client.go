// Package cli implements snippetctl, the command-line client for a running
// catalog server.
//
// snippetctl speaks the same HTTP API as the web UI: it never opens the
// database itself, so it works against a remote server and never races the
// server's history recorder.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/service"
)

// DefaultServerURL is where snippetctl looks for the server unless told
// otherwise.
const DefaultServerURL = "http://localhost:8080"

// Client is a thin JSON client for the catalog API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response. It unwraps to the matching apperror
// sentinel, so callers can use errors.Is(err, apperror.ErrNotFound).
type APIError struct {
	Status  int
	Type    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return apperror.ErrValidation
	case http.StatusUnauthorized:
		return apperror.ErrUnauthorized
	case http.StatusForbidden:
		return apperror.ErrForbidden
	case http.StatusNotFound:
		return apperror.ErrNotFound
	case http.StatusConflict:
		return apperror.ErrConflict
	case http.StatusServiceUnavailable:
		return apperror.ErrStoreUnavailable
	case http.StatusGatewayTimeout:
		return apperror.ErrTimeout
	}
	return nil
}

// SearchResult is a page of hits plus any warning the server attached.
type SearchResult struct {
	Hits    []model.SearchHit
	Warning string
}

// Search calls GET /api/search. params carries q, languages, tags and the
// rest verbatim.
func (c *Client) Search(ctx context.Context, params url.Values) (*SearchResult, error) {
	var hits []model.SearchHit
	header, err := c.do(ctx, http.MethodGet, "/api/search", params, nil, &hits)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Hits: hits, Warning: header.Get("X-Search-Warning")}, nil
}

func (c *Client) Suggest(ctx context.Context, prefix string, limit int) ([]model.SuggestionItem, error) {
	var items []model.SuggestionItem
	_, err := c.do(ctx, http.MethodGet, "/api/search/suggestions", withLimit(url.Values{"q": {prefix}}, limit), nil, &items)
	return items, err
}

func (c *Client) History(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	_, err := c.do(ctx, http.MethodGet, "/api/search/history", withLimit(url.Values{}, limit), nil, &entries)
	return entries, err
}

func (c *Client) Popular(ctx context.Context, limit int) ([]model.StatsEntry, error) {
	var stats []model.StatsEntry
	_, err := c.do(ctx, http.MethodGet, "/api/search/stats", withLimit(url.Values{}, limit), nil, &stats)
	return stats, err
}

// DeleteHistory removes one entry, or the whole history when id is empty.
func (c *Client) DeleteHistory(ctx context.Context, id string) error {
	params := url.Values{}
	if id != "" {
		params.Set("id", id)
	}
	_, err := c.do(ctx, http.MethodDelete, "/api/search/history", params, nil, nil)
	return err
}

func (c *Client) Create(ctx context.Context, in service.SnippetInput) (*model.Snippet, error) {
	var created model.Snippet
	if _, err := c.do(ctx, http.MethodPost, "/api/snippets", nil, in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Login exchanges the owner password for a token.
func (c *Client) Login(ctx context.Context, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/auth/login", nil, map[string]string{"password": password}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) (http.Header, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		// A body that isn't our error JSON still leaves a usable status.
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return resp.Header, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.Header, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.Header, nil
}

func withLimit(params url.Values, limit int) url.Values {
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}
