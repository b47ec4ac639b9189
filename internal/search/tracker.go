package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// Tracker owns search history and popularity stats.
//
// Every Record is one history row plus one stats increment, written
// atomically by the repository, so a query's stats count always equals the
// number of history rows ever written for it. Deleting history never touches
// stats.
type Tracker struct {
	repo   repository.HistoryRepository
	logger *slog.Logger
}

func NewTracker(repo repository.HistoryRepository, logger *slog.Logger) *Tracker {
	return &Tracker{repo: repo, logger: logger}
}

// Record stores one executed search. filters is kept as opaque JSON; nil
// or "null" means the search had no filters.
func (t *Tracker) Record(ctx context.Context, query string, filters json.RawMessage, resultCount int) (*model.HistoryEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("query", "search query is required")
	}
	if resultCount < 0 {
		return nil, apperror.ValidationFailed("resultCount", "result count cannot be negative")
	}
	if len(filters) > 0 && !json.Valid(filters) {
		return nil, apperror.ValidationFailed("filters", "filters must be valid JSON")
	}

	entry, err := t.repo.Record(ctx, query, filters, resultCount)
	if err != nil {
		return nil, fmt.Errorf("recording search: %w", err)
	}

	t.logger.Debug("search recorded",
		slog.String("query", query),
		slog.Int("resultCount", resultCount),
	)
	return entry, nil
}

// Recent returns the newest history entries. limit defaults to 10, max 100.
func (t *Tracker) Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	entries, err := t.repo.Recent(ctx, clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit))
	if err != nil {
		return nil, apperror.StoreUnavailable("search history", err)
	}
	return entries, nil
}

// Popular returns the most searched queries, highest count first.
// limit defaults to 10, max 100.
func (t *Tracker) Popular(ctx context.Context, limit int) ([]model.StatsEntry, error) {
	stats, err := t.repo.Popular(ctx, clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit))
	if err != nil {
		return nil, apperror.StoreUnavailable("search stats", err)
	}
	return stats, nil
}

// DeleteOne removes one history entry by id.
func (t *Tracker) DeleteOne(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "history entry id is required")
	}
	if err := t.repo.DeleteOne(ctx, id); err != nil {
		return fmt.Errorf("deleting history entry: %w", err)
	}
	t.logger.Info("search history entry deleted", slog.String("id", id))
	return nil
}

// ClearAll removes every history entry. Stats are kept.
func (t *Tracker) ClearAll(ctx context.Context) error {
	if err := t.repo.ClearAll(ctx); err != nil {
		return fmt.Errorf("clearing search history: %w", err)
	}
	t.logger.Info("search history cleared")
	return nil
}

// FilterSnapshot serializes a FilterSpec for a history entry. An empty spec
// is stored as null.
func FilterSnapshot(spec model.FilterSpec) json.RawMessage {
	if spec.IsZero() {
		return nil
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil
	}
	return raw
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
