package search

import (
	"context"
	"errors"
	"time"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/repository"
)

const (
	DefaultMatchTimeout = 2 * time.Second
	DefaultMaxHits      = 500
)

// Engine is a thin adapter over a repository.TextIndex. It adds the
// guarantees the rest of the pipeline relies on: bounded time, bounded hit
// count, unique ids, and typed errors.
type Engine struct {
	index   repository.TextIndex
	timeout time.Duration
	maxHits int
}

// NewEngine wraps index. Non-positive timeout or maxHits use the defaults.
func NewEngine(index repository.TextIndex, timeout time.Duration, maxHits int) *Engine {
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}
	return &Engine{index: index, timeout: timeout, maxHits: maxHits}
}

// Match returns the ids the index considers a match for query, in the
// index's relevance order, without duplicates.
//
// Errors:
//   - apperror.ErrMalformedQuery if the index could not parse the query
//   - apperror.ErrTimeout if the index did not answer in time (any partial
//     result is discarded)
//   - apperror.ErrStoreUnavailable for any other index failure
func (e *Engine) Match(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ids, err := e.index.Match(ctx, query, e.maxHits)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrMalformedQuery):
			return nil, err
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, apperror.Timeout("full-text search", ctx.Err())
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, apperror.StoreUnavailable("full-text search", err)
		}
	}

	return uniqueIDs(ids, e.maxHits), nil
}

func uniqueIDs(ids []string, max int) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if len(out) == max {
			break
		}
	}
	return out
}
