package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

// Compile-time checks that *DB implements every repository it backs.
var (
	_ repository.SnippetRepository = (*DB)(nil)
	_ repository.TextIndex         = (*DB)(nil)
	_ repository.SnippetIndexer    = (*DB)(nil)
	_ repository.HistoryRepository = (*DB)(nil)
)

// querier is the subset of *sql.DB and *sql.Tx the helpers below need, so
// the same code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const snippetColumns = `s.id, s.title, s.code, s.language, s.description, s.tutorial, s.created_at, s.updated_at`

func scanSnippet(scan func(dest ...any) error) (model.Snippet, error) {
	var s model.Snippet
	err := scan(&s.ID, &s.Title, &s.Code, &s.Language, &s.Description, &s.Tutorial, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Create inserts a new snippet and its tags.
//
// KEY CONCEPTS:
//
//  1. ONE TRANSACTION FOR THE WHOLE AGGREGATE:
//     A snippet row, any new tag rows and the snippet_tags join rows are
//     written together. If a tag insert fails, the snippet is rolled back too,
//     so nobody ever sees a snippet with half its tags.
//
//  2. UTC TIMESTAMPS:
//     Times are stored as text and compared as text by the date-range filter.
//     Keeping every stored time in UTC keeps that comparison correct.
//
//  3. THE FTS INDEX IS NOT TOUCHED HERE:
//     The snippets_fts triggers copy title/description/code on insert.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()
	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (id, title, code, language, description, tutorial, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snippet.ID, snippet.Title, snippet.Code, snippet.Language,
			snippet.Description, snippet.Tutorial, snippet.CreatedAt, snippet.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating snippet: %w", err)
		}

		tags, err := setTags(ctx, tx, snippet.ID, snippet.Tags, now)
		if err != nil {
			return err
		}
		snippet.Tags = tags
		return nil
	})
}

// GetByID retrieves a single snippet with its tags.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets s WHERE s.id = ?`, id)

	snippet, err := scanSnippet(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	snippets := []model.Snippet{snippet}
	if err := loadTags(ctx, db.conn, snippets); err != nil {
		return nil, err
	}
	return &snippets[0], nil
}

// Update overwrites the editable fields of a snippet and replaces its tag set.
// id and created_at never change.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	now := time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE snippets
			 SET title = ?, code = ?, language = ?, description = ?, tutorial = ?, updated_at = ?
			 WHERE id = ?`,
			snippet.Title, snippet.Code, snippet.Language,
			snippet.Description, snippet.Tutorial, now, snippet.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("snippet", snippet.ID)
		}

		// Replace, don't diff: the join table is tiny per snippet.
		if _, err := tx.ExecContext(ctx, `DELETE FROM snippet_tags WHERE snippet_id = ?`, snippet.ID); err != nil {
			return fmt.Errorf("sqlite: clearing tags of %s: %w", snippet.ID, err)
		}
		tags, err := setTags(ctx, tx, snippet.ID, snippet.Tags, now)
		if err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM snippets WHERE id = ?`, snippet.ID,
		).Scan(&snippet.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: reloading snippet %s: %w", snippet.ID, err)
		}
		snippet.UpdatedAt = now
		snippet.Tags = tags
		return nil
	})
}

// Delete removes a snippet. ON DELETE CASCADE drops its snippet_tags rows and
// the FTS trigger drops its index row, so it vanishes from filters and
// suggestions at once.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// Index and Remove satisfy repository.SnippetIndexer. The FTS5 table is kept
// in sync by triggers, so there is nothing to do.
func (db *DB) Index(context.Context, *model.Snippet) error { return nil }
func (db *DB) Remove(context.Context, string) error         { return nil }

// setTags upserts tags by name and attaches them to a snippet in the given
// order. Duplicate and blank names are skipped. It returns the attached tags
// as stored (with ids and colors).
func setTags(ctx context.Context, q querier, snippetID string, tags []model.Tag, now time.Time) ([]model.Tag, error) {
	attached := make([]model.Tag, 0, len(tags))
	seen := make(map[string]bool, len(tags))

	for i, in := range tags {
		name := strings.TrimSpace(in.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		// ON CONFLICT DO NOTHING: an existing tag keeps its id and color.
		if _, err := q.ExecContext(ctx,
			`INSERT INTO tags (id, name, color) VALUES (?, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			xid.New().String(), name, in.Color,
		); err != nil {
			return nil, fmt.Errorf("sqlite: upserting tag %q: %w", name, err)
		}

		var tag model.Tag
		var color sql.NullString
		if err := q.QueryRowContext(ctx,
			`SELECT id, name, color FROM tags WHERE name = ?`, name,
		).Scan(&tag.ID, &tag.Name, &color); err != nil {
			return nil, fmt.Errorf("sqlite: loading tag %q: %w", name, err)
		}
		if color.Valid {
			tag.Color = &color.String
		}

		// Offset by position so assignment order survives identical clocks.
		if _, err := q.ExecContext(ctx,
			`INSERT INTO snippet_tags (snippet_id, tag_id, assigned_at) VALUES (?, ?, ?)`,
			snippetID, tag.ID, now.Add(time.Duration(i)*time.Microsecond),
		); err != nil {
			return nil, fmt.Errorf("sqlite: attaching tag %q: %w", name, err)
		}
		attached = append(attached, tag)
	}
	return attached, nil
}

// loadTags fills in Tags for every snippet in one query, in assignment order.
// Snippets without tags get an empty (non-nil) slice so they encode as [].
func loadTags(ctx context.Context, q querier, snippets []model.Snippet) error {
	if len(snippets) == 0 {
		return nil
	}

	index := make(map[string]int, len(snippets))
	args := make([]any, len(snippets))
	for i := range snippets {
		snippets[i].Tags = []model.Tag{}
		index[snippets[i].ID] = i
		args[i] = snippets[i].ID
	}

	rows, err := q.QueryContext(ctx,
		`SELECT st.snippet_id, t.id, t.name, t.color
		 FROM snippet_tags st
		 JOIN tags t ON t.id = st.tag_id
		 WHERE st.snippet_id IN (`+placeholders(len(args))+`)
		 ORDER BY st.assigned_at, st.rowid`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snippetID string
		var tag model.Tag
		var color sql.NullString
		if err := rows.Scan(&snippetID, &tag.ID, &tag.Name, &color); err != nil {
			return fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		if color.Valid {
			tag.Color = &color.String
		}
		i := index[snippetID]
		snippets[i].Tags = append(snippets[i].Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return nil
}
