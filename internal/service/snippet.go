// Package service contains the business logic for snippet writes.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Reads that involve text search or filters live in internal/search. This
// package owns the plain CRUD path: one snippet in, one snippet out.
//
// DEPENDENCY INJECTION:
// SnippetService takes a repository.SnippetRepository (interface), NOT a
// *sqlite.DB. Tests pass an in-memory mock (see snippet_test.go).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

// Validation constants.
const (
	MaxTitleLength       = 200
	MaxLanguageLength    = 50
	MaxCodeLength        = 100000 // ~100KB of code
	MaxDescriptionLength = 2000
	MaxTutorialLength    = 50000
	MaxTagLength         = 50
	MaxTagsPerSnippet    = 20
)

// SnippetInput is the caller-supplied part of a snippet. Create and Update
// both take one; the repository fills in ID and timestamps.
//
// Tags: nil on Update means "keep the current tags"; an empty non-nil slice
// removes them all.
type SnippetInput struct {
	Title       string   `json:"title"`
	Code        string   `json:"code"`
	Language    string   `json:"language"`
	Description string   `json:"description"`
	Tutorial    string   `json:"tutorial"`
	Tags        []string `json:"tags"`
}

// SnippetService handles business logic for code snippets.
//
// STRUCT FIELDS:
//   - repo: the database interface (injected, not created here)
//   - indexer: keeps an external text index in step with writes (may be nil)
//   - logger: for structured logging of business events
type SnippetService struct {
	repo    repository.SnippetRepository
	indexer repository.SnippetIndexer
	logger  *slog.Logger
}

// NewSnippetService creates a new SnippetService. indexer may be nil when
// the store maintains its own index.
func NewSnippetService(repo repository.SnippetRepository, indexer repository.SnippetIndexer, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:    repo,
		indexer: indexer,
		logger:  logger,
	}
}

// Create validates and saves a new snippet.
//
// IMPORTANT DESIGN DECISIONS:
//
//  1. ACCEPT PLAIN VALUES, NOT HTTP TYPES:
//     The same method serves the HTTP handler and the snippetctl CLI.
//
//  2. RETURN DOMAIN ERRORS:
//     We return apperror.ValidationFailed, NOT http.StatusBadRequest.
//     The handler translates domain errors to HTTP status codes.
//
//  3. THE INDEX FOLLOWS THE STORE:
//     The snippet is saved first. If the external index then fails, the
//     write still stands; the index is rebuilt from the store on startup.
func (s *SnippetService) Create(ctx context.Context, in SnippetInput) (*model.Snippet, error) {
	snippet := &model.Snippet{}
	if err := apply(snippet, in, true); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", snippet.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}
	s.index(ctx, snippet)

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("title", snippet.Title),
	)
	return snippet, nil
}

// GetByID retrieves a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	// NotFound is already an apperror; let it propagate untouched.
	return s.repo.GetByID(ctx, id)
}

// Update replaces the fields of an existing snippet.
//
// STRATEGY: "Fetch then update"
// Fetching first gives a consistent NotFound and lets a nil Tags slice keep
// the snippet's current tags.
func (s *SnippetService) Update(ctx context.Context, id string, in SnippetInput) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}

	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(snippet, in, in.Tags != nil); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}
	s.index(ctx, snippet)

	s.logger.Info("snippet updated",
		slog.String("id", snippet.ID),
		slog.String("title", snippet.Title),
	)
	return snippet, nil
}

// Delete removes a snippet by its ID. Its tag links go with it; the tags
// themselves stay.
func (s *SnippetService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "snippet ID is required")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.indexer != nil {
		if err := s.indexer.Remove(ctx, id); err != nil {
			s.logger.Error("failed to remove snippet from index",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

func (s *SnippetService) index(ctx context.Context, snippet *model.Snippet) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, snippet); err != nil {
		s.logger.Error("failed to index snippet",
			slog.String("id", snippet.ID),
			slog.String("error", err.Error()),
		)
	}
}

// apply validates in and copies it onto snippet. Tags are only replaced when
// setTags is true.
func apply(snippet *model.Snippet, in SnippetInput, setTags bool) error {
	title := strings.TrimSpace(in.Title)
	language := strings.TrimSpace(in.Language)

	switch {
	case title == "":
		return apperror.ValidationFailed("title", "title is required")
	case len(title) > MaxTitleLength:
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	case strings.TrimSpace(in.Code) == "":
		return apperror.ValidationFailed("code", "code is required")
	case len(in.Code) > MaxCodeLength:
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	case language == "":
		return apperror.ValidationFailed("language", "language is required")
	case len(language) > MaxLanguageLength:
		return apperror.ValidationFailed("language",
			fmt.Sprintf("language must be %d characters or less", MaxLanguageLength))
	case len(in.Description) > MaxDescriptionLength:
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	case len(in.Tutorial) > MaxTutorialLength:
		return apperror.ValidationFailed("tutorial",
			fmt.Sprintf("tutorial must be %d characters or less", MaxTutorialLength))
	}

	var tags []model.Tag
	if setTags {
		names, err := normalizeTags(in.Tags)
		if err != nil {
			return err
		}
		tags = make([]model.Tag, len(names))
		for i, name := range names {
			tags[i] = model.Tag{Name: name}
		}
	}

	snippet.Title = title
	snippet.Code = in.Code
	snippet.Language = language
	snippet.Description = strings.TrimSpace(in.Description)
	snippet.Tutorial = in.Tutorial
	if setTags {
		snippet.Tags = tags
	}
	return nil
}

// normalizeTags trims names, drops blanks and duplicates, and keeps the
// caller's order. Tag names are case-sensitive.
func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r)
		if name == "" || seen[name] {
			continue
		}
		if len(name) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("tag %q must be %d characters or less", name, MaxTagLength))
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) > MaxTagsPerSnippet {
		return nil, apperror.ValidationFailed("tags",
			fmt.Sprintf("a snippet can carry at most %d tags", MaxTagsPerSnippet))
	}
	return names, nil
}
