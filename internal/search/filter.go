package search

import (
	"strings"
	"time"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

// RawFilter is filter input as transports receive it: comma-separated lists
// and enum names, not yet validated.
//
// Tag is the legacy single-tag parameter of the snippet list endpoint. It is
// merged into Tags, so it follows the same all-tags rule.
type RawFilter struct {
	Languages string
	Tags      string
	Tag       string
	DateRange string
	SortBy    string
	SortOrder string
}

// ParseFilter turns raw transport input into a FilterSpec. Enum names are
// matched case-insensitively; anything unknown is an InvalidFilter error.
func ParseFilter(raw RawFilter) (model.FilterSpec, error) {
	spec := model.FilterSpec{
		Languages: splitList(raw.Languages),
		Tags:      splitList(raw.Tags),
	}
	if tag := strings.TrimSpace(raw.Tag); tag != "" {
		spec.Tags = append(spec.Tags, tag)
	}

	if v := strings.TrimSpace(raw.DateRange); v != "" {
		dr, ok := matchEnum(v, model.DateRangeAll, model.DateRangeToday, model.DateRangeWeek,
			model.DateRangeMonth, model.DateRangeQuarter)
		if !ok {
			return model.FilterSpec{}, apperror.InvalidFilter("dateRange", v)
		}
		spec.DateRange = dr
	}

	if v := strings.TrimSpace(raw.SortBy); v != "" {
		sb, ok := matchEnum(v, model.SortByCreatedAt, model.SortByUpdatedAt)
		if !ok {
			return model.FilterSpec{}, apperror.InvalidFilter("sortBy", v)
		}
		spec.SortBy = sb
	}

	if v := strings.TrimSpace(raw.SortOrder); v != "" {
		so, ok := matchEnum(v, model.SortAsc, model.SortDesc)
		if !ok {
			return model.FilterSpec{}, apperror.InvalidFilter("sortOrder", v)
		}
		spec.SortOrder = so
	}

	return spec, nil
}

// Plan is a FilterSpec resolved against a point in time: the store query to
// run, plus whether the caller asked for an explicit order.
//
// When ExplicitSort is false and a full-text query is active, the caller
// keeps relevance order instead of Query's ordering.
type Plan struct {
	Query        repository.SnippetQuery
	ExplicitSort bool
}

// Compose maps a FilterSpec to a Plan. It is a pure function of its inputs:
// now is only used to resolve the relative date range.
//
//   - Languages: lowercased, OR.
//   - Tags: AND, every listed tag required.
//   - DateRange: today = midnight of now's day; week = now - 7 days;
//     month / quarter = now - 1 / 3 calendar months; all = no bound.
//   - Sort: createdAt desc unless given.
func Compose(spec model.FilterSpec, now time.Time) (Plan, error) {
	var plan Plan

	plan.Query.Languages = normalizeList(spec.Languages, strings.ToLower)
	plan.Query.Tags = normalizeList(spec.Tags, nil)

	switch spec.DateRange {
	case "", model.DateRangeAll:
	case model.DateRangeToday:
		y, m, d := now.Date()
		bound := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		plan.Query.CreatedAfter = &bound
	case model.DateRangeWeek:
		bound := now.AddDate(0, 0, -7)
		plan.Query.CreatedAfter = &bound
	case model.DateRangeMonth:
		bound := now.AddDate(0, -1, 0)
		plan.Query.CreatedAfter = &bound
	case model.DateRangeQuarter:
		bound := now.AddDate(0, -3, 0)
		plan.Query.CreatedAfter = &bound
	default:
		return Plan{}, apperror.InvalidFilter("dateRange", string(spec.DateRange))
	}

	switch spec.SortBy {
	case "", model.SortByCreatedAt:
		plan.Query.OrderBy = model.SortByCreatedAt
	case model.SortByUpdatedAt:
		plan.Query.OrderBy = model.SortByUpdatedAt
	default:
		return Plan{}, apperror.InvalidFilter("sortBy", string(spec.SortBy))
	}

	switch spec.SortOrder {
	case "", model.SortDesc:
		plan.Query.Desc = true
	case model.SortAsc:
		plan.Query.Desc = false
	default:
		return Plan{}, apperror.InvalidFilter("sortOrder", string(spec.SortOrder))
	}

	plan.ExplicitSort = spec.SortBy != "" || spec.SortOrder != ""
	return plan, nil
}

func matchEnum[T ~string](v string, options ...T) (T, bool) {
	for _, o := range options {
		if strings.EqualFold(v, string(o)) {
			return o, true
		}
	}
	return "", false
}

func splitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return normalizeList(strings.Split(csv, ","), nil)
}

// normalizeList trims, optionally maps, drops empties and dedupes values,
// keeping first-seen order. It returns nil for an empty result.
func normalizeList(values []string, mapFn func(string) string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if mapFn != nil {
			v = mapFn(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
