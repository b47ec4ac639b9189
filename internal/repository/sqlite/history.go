package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
)

// Record appends a search_history row and increments the query's
// search_stats counter in one transaction.
//
// KEY CONCEPTS:
//
//  1. ATOMIC UPSERT-INCREMENT:
//     "INSERT ... ON CONFLICT(query) DO UPDATE SET search_count = search_count + 1"
//     is a single statement. Two concurrent first searches for "react" can't
//     both insert (query is UNIQUE) and can't both read 0 and write 1
//     (the increment happens inside the row update). The result is one row
//     with count 2.
//
//  2. WHY A TRANSACTION:
//     The stats count must equal the number of history rows for the query.
//     If the upsert fails after the history insert, both roll back.
//
//  3. WRITER CONTENTION:
//     SQLite allows one writer at a time. busy_timeout (see dsn) makes a
//     second writer wait for the lock instead of failing with SQLITE_BUSY.
func (db *DB) Record(ctx context.Context, query string, filters json.RawMessage, resultCount int) (*model.HistoryEntry, error) {
	entry := &model.HistoryEntry{
		ID:          xid.New().String(),
		Query:       query,
		Filters:     filters,
		ResultCount: resultCount,
		CreatedAt:   time.Now().UTC(),
	}

	var filtersArg any
	if len(filters) > 0 && string(filters) != "null" {
		filtersArg = string(filters)
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_history (id, query, filters, result_count, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			entry.ID, entry.Query, filtersArg, entry.ResultCount, entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: inserting history entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_stats (id, query, search_count, last_searched_at)
			 VALUES (?, ?, 1, ?)
			 ON CONFLICT(query) DO UPDATE SET
				search_count = search_count + 1,
				last_searched_at = excluded.last_searched_at`,
			xid.New().String(), entry.Query, entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: upserting search stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Recent returns the newest history entries first.
func (db *DB) Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, query, filters, result_count, created_at
		 FROM search_history
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing history: %w", err)
	}
	defer rows.Close()

	entries := make([]model.HistoryEntry, 0)
	for rows.Next() {
		var e model.HistoryEntry
		var filters sql.NullString
		if err := rows.Scan(&e.ID, &e.Query, &filters, &e.ResultCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning history row: %w", err)
		}
		if filters.Valid {
			e.Filters = json.RawMessage(filters.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating history: %w", err)
	}
	return entries, nil
}

// Popular returns the most searched queries, ties broken by most recent
// search and then alphabetically.
func (db *DB) Popular(ctx context.Context, limit int) ([]model.StatsEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, query, search_count, last_searched_at
		 FROM search_stats
		 ORDER BY search_count DESC, last_searched_at DESC, query
		 LIMIT ?`,
		sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing search stats: %w", err)
	}
	defer rows.Close()

	stats := make([]model.StatsEntry, 0)
	for rows.Next() {
		var s model.StatsEntry
		if err := rows.Scan(&s.ID, &s.Query, &s.SearchCount, &s.LastSearchedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning search stats row: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating search stats: %w", err)
	}
	return stats, nil
}

// DeleteOne removes a single history entry. search_stats is left alone:
// popularity counts every search ever made.
func (db *DB) DeleteOne(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM search_history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting history entry %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("history entry", id)
	}
	return nil
}

// ClearAll removes every history entry. search_stats is left alone.
func (db *DB) ClearAll(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM search_history`); err != nil {
		return fmt.Errorf("sqlite: clearing history: %w", err)
	}
	return nil
}
