package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

const (
	DefaultSuggestLimit = 5
	MaxSuggestLimit     = 20
)

// Suggest returns type-ahead candidates for prefix: up to limit titles, then
// up to limit tags (with usage counts), then up to limit languages. Matching
// is a case-insensitive prefix match.
//
// The three lookups run concurrently and fail independently: a category
// whose lookup fails is logged and left out. Only when all three fail is an
// error returned.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) ([]model.SuggestionItem, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []model.SuggestionItem{}, nil
	}
	limit = clampLimit(limit, DefaultSuggestLimit, MaxSuggestLimit)

	var (
		titles, languages         []string
		tags                      []model.TagCount
		titleErr, tagErr, langErr error
	)

	g, gctx := errgroup.WithContext(ctx)

	// Each lookup keeps its error to itself and returns nil, so one slow or
	// broken category never cancels the others.
	g.Go(func() error {
		titles, titleErr = s.store.DistinctValues(gctx, repository.FieldTitle, prefix, limit)
		return nil
	})
	g.Go(func() error {
		tags, tagErr = s.store.TagCounts(gctx, prefix, limit)
		return nil
	})
	g.Go(func() error {
		languages, langErr = s.store.DistinctValues(gctx, repository.FieldLanguage, prefix, limit)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, failed := range []struct {
		category string
		err      error
	}{
		{"title", titleErr},
		{"tag", tagErr},
		{"language", langErr},
	} {
		if failed.err != nil {
			s.logger.Error("suggestion lookup failed",
				slog.String("category", failed.category),
				slog.String("prefix", prefix),
				slog.String("error", failed.err.Error()),
			)
		}
	}
	if titleErr != nil && tagErr != nil && langErr != nil {
		return nil, apperror.StoreUnavailable("suggestions", errors.Join(titleErr, tagErr, langErr))
	}

	items := make([]model.SuggestionItem, 0, len(titles)+len(tags)+len(languages))
	for _, t := range head(titles, limit) {
		items = append(items, model.SuggestionItem{Type: model.SuggestionTitle, Text: t})
	}
	for _, t := range head(tags, limit) {
		count := t.Count
		items = append(items, model.SuggestionItem{Type: model.SuggestionTag, Text: t.Name, Count: &count})
	}
	for _, l := range head(languages, limit) {
		items = append(items, model.SuggestionItem{Type: model.SuggestionLanguage, Text: l})
	}
	return items, nil
}

// Metadata is the catalog's filter vocabulary: every language in use and
// every tag with its snippet count.
type Metadata struct {
	Languages []string         `json:"languages"`
	Tags      []model.TagCount `json:"tags"`
}

// Metadata lists all languages and tags, for building filter pickers.
func (s *Service) Metadata(ctx context.Context) (*Metadata, error) {
	var md Metadata

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		md.Languages, err = s.store.DistinctValues(gctx, repository.FieldLanguage, "", 0)
		return err
	})
	g.Go(func() error {
		var err error
		md.Tags, err = s.store.TagCounts(gctx, "", 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(ctx, "metadata", err)
	}
	return &md, nil
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
