package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

// FindSnippets runs a SnippetQuery and returns hydrated snippets.
//
// KEY CONCEPTS:
//
//  1. BUILDING SQL FROM OPTIONAL PARTS:
//     Each non-empty field of the query appends one condition and its
//     arguments. Only placeholders are ever concatenated, never values,
//     so this is still a parameterized query.
//
//  2. TAGS ARE "AND":
//     The sub-select keeps snippets whose matching tag names, counted
//     distinctly, equal the number of requested names, i.e. snippets that
//     carry every one of them.
//
//  3. STABLE ORDER:
//     rowid breaks ties between identical timestamps, so repeated calls
//     return the same order.
func (db *DB) FindSnippets(ctx context.Context, q repository.SnippetQuery) ([]model.Snippet, error) {
	if q.IDs != nil && len(q.IDs) == 0 {
		return []model.Snippet{}, nil
	}

	var (
		where []string
		args  []any
	)

	if len(q.IDs) > 0 {
		where = append(where, `s.id IN (`+placeholders(len(q.IDs))+`)`)
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}

	if len(q.Languages) > 0 {
		where = append(where, `LOWER(s.language) IN (`+placeholders(len(q.Languages))+`)`)
		for _, l := range q.Languages {
			args = append(args, strings.ToLower(l))
		}
	}

	if len(q.Tags) > 0 {
		names := dedupe(q.Tags)
		where = append(where, `s.id IN (
			SELECT st.snippet_id FROM snippet_tags st
			JOIN tags t ON t.id = st.tag_id
			WHERE t.name IN (`+placeholders(len(names))+`)
			GROUP BY st.snippet_id
			HAVING COUNT(DISTINCT t.name) = ?)`)
		for _, n := range names {
			args = append(args, n)
		}
		args = append(args, len(names))
	}

	if q.CreatedAfter != nil {
		where = append(where, `s.created_at >= ?`)
		args = append(args, q.CreatedAfter.UTC())
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + snippetColumns + ` FROM snippets s`)
	if len(where) > 0 {
		b.WriteString(` WHERE `)
		b.WriteString(strings.Join(where, ` AND `))
	}

	column := `s.created_at`
	if q.OrderBy == model.SortByUpdatedAt {
		column = `s.updated_at`
	}
	dir := `ASC`
	if q.Desc {
		dir = `DESC`
	}
	fmt.Fprintf(&b, ` ORDER BY %s %s, s.rowid %s`, column, dir, dir)

	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0)
	for rows.Next() {
		s, err := scanSnippet(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	// Close before loadTags: on a single-connection pool the second query
	// would wait for this one's connection.
	rows.Close()

	if err := loadTags(ctx, db.conn, snippets); err != nil {
		return nil, err
	}
	return snippets, nil
}

// DistinctValues lists distinct titles or languages starting with prefix.
//
// Titles come most recently edited first; languages most used first.
func (db *DB) DistinctValues(ctx context.Context, field repository.Field, prefix string, limit int) ([]string, error) {
	var query string
	switch field {
	case repository.FieldTitle:
		query = `SELECT title FROM snippets
			WHERE title LIKE ? ESCAPE '\'
			GROUP BY title
			ORDER BY MAX(updated_at) DESC, title
			LIMIT ?`
	case repository.FieldLanguage:
		query = `SELECT MIN(language) FROM snippets
			WHERE language LIKE ? ESCAPE '\'
			GROUP BY LOWER(language)
			ORDER BY COUNT(*) DESC, LOWER(language)
			LIMIT ?`
	default:
		return nil, fmt.Errorf("sqlite: unsupported field %q", field)
	}

	rows, err := db.conn.QueryContext(ctx, query, likePrefix(prefix), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s values: %w", field, err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s value: %w", field, err)
		}
		// LIKE folds ASCII case only; recheck so callers get a consistent rule.
		if hasPrefixFold(v, prefix) {
			values = append(values, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s values: %w", field, err)
	}
	return values, nil
}

// TagCounts lists tags starting with prefix together with how many snippets
// carry each one. Unused tags are included with a count of zero.
func (db *DB) TagCounts(ctx context.Context, prefix string, limit int) ([]model.TagCount, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.name, t.color, COUNT(st.snippet_id) AS n
		 FROM tags t
		 LEFT JOIN snippet_tags st ON st.tag_id = t.id
		 WHERE t.name LIKE ? ESCAPE '\'
		 GROUP BY t.id
		 ORDER BY n DESC, t.name
		 LIMIT ?`,
		likePrefix(prefix), sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting tags: %w", err)
	}
	defer rows.Close()

	counts := make([]model.TagCount, 0)
	for rows.Next() {
		var tc model.TagCount
		var color *string
		if err := rows.Scan(&tc.ID, &tc.Name, &color, &tc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag count: %w", err)
		}
		tc.Color = color
		if hasPrefixFold(tc.Name, prefix) {
			counts = append(counts, tc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tag counts: %w", err)
	}
	return counts, nil
}

// likePrefix turns a user prefix into a LIKE pattern, escaping the LIKE
// wildcards so "50%" only matches a literal percent sign.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// sqlLimit maps "no limit" (<= 0) to SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
