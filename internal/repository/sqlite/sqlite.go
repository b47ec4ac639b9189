// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY SQLITE?
// The catalog is a single-node, single-owner store of a few thousand snippets.
// SQLite lives inside the binary as one file, needs no server, and ships an
// inverted index (FTS5) with BM25 ranking, which is exactly what search needs.
//
// modernc.org/sqlite is a pure Go translation of the C library, so the binary
// cross-compiles without CGo. FTS5 is compiled in.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB  : a connection pool (NOT a single connection!)
//   - sql.Tx  : a transaction, pinned to one connection
//   - sql.Rows: multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql at init time.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the snippet, text index
// and history repositories.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/snippets.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// PER-CONNECTION PRAGMAS:
// foreign_keys and busy_timeout are connection settings, not database
// settings. A plain `PRAGMA foreign_keys=ON` would only reach whichever pooled
// connection ran it, so they go into the DSN where the driver applies them to
// every connection it opens.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand new, empty database.
	// One connection keeps all queries on the same one.
	if isMemory(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

func dsn(dbPath string) string {
	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	// WAL lets readers proceed while the history recorder writes.
	if !isMemory(dbPath) {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dbPath)
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	// Store times as "2006-01-02 15:04:05.999999999-07:00" so that, all
	// being UTC, text order is time order.
	b.WriteString("&_time_format=sqlite")
	// Transactions here always write. Taking the write lock at BEGIN lets
	// busy_timeout queue concurrent writers instead of failing one of them.
	b.WriteString("&_txlock=immediate")
	return b.String()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. Every statement is idempotent
// (IF NOT EXISTS), so it runs on every start.
func (db *DB) migrate(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"snippets table", `
			CREATE TABLE IF NOT EXISTS snippets (
				id          TEXT PRIMARY KEY,
				title       TEXT NOT NULL,
				code        TEXT NOT NULL DEFAULT '',
				language    TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				tutorial    TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL,
				updated_at  DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_snippets_created_at ON snippets(created_at);
			CREATE INDEX IF NOT EXISTS idx_snippets_updated_at ON snippets(updated_at);
			CREATE INDEX IF NOT EXISTS idx_snippets_language ON snippets(language COLLATE NOCASE);
		`},
		{"tags tables", `
			CREATE TABLE IF NOT EXISTS tags (
				id    TEXT PRIMARY KEY,
				name  TEXT NOT NULL UNIQUE,
				color TEXT
			);
			CREATE TABLE IF NOT EXISTS snippet_tags (
				snippet_id  TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
				tag_id      TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				assigned_at DATETIME NOT NULL,
				PRIMARY KEY (snippet_id, tag_id)
			);
			CREATE INDEX IF NOT EXISTS idx_snippet_tags_tag_id ON snippet_tags(tag_id);
		`},
		// FULL-TEXT INDEX:
		// snippets_fts is a standalone FTS5 table holding a copy of the
		// searchable columns. snippet_id is UNINDEXED: stored so MATCH rows can
		// be joined back, but never tokenized. Triggers keep it in sync, so
		// writers never touch it directly.
		{"full-text index", `
			CREATE VIRTUAL TABLE IF NOT EXISTS snippets_fts USING fts5(
				snippet_id UNINDEXED,
				title,
				description,
				code
			);
			CREATE TRIGGER IF NOT EXISTS snippets_fts_insert AFTER INSERT ON snippets BEGIN
				INSERT INTO snippets_fts (snippet_id, title, description, code)
				VALUES (new.id, new.title, new.description, new.code);
			END;
			CREATE TRIGGER IF NOT EXISTS snippets_fts_delete AFTER DELETE ON snippets BEGIN
				DELETE FROM snippets_fts WHERE snippet_id = old.id;
			END;
			CREATE TRIGGER IF NOT EXISTS snippets_fts_update AFTER UPDATE ON snippets BEGIN
				DELETE FROM snippets_fts WHERE snippet_id = old.id;
				INSERT INTO snippets_fts (snippet_id, title, description, code)
				VALUES (new.id, new.title, new.description, new.code);
			END;
		`},
		{"search history tables", `
			CREATE TABLE IF NOT EXISTS search_history (
				id           TEXT PRIMARY KEY,
				query        TEXT NOT NULL,
				filters      TEXT,
				result_count INTEGER NOT NULL DEFAULT 0,
				created_at   DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_search_history_created_at ON search_history(created_at);
			CREATE TABLE IF NOT EXISTS search_stats (
				id               TEXT PRIMARY KEY,
				query            TEXT NOT NULL UNIQUE,
				search_count     INTEGER NOT NULL DEFAULT 0,
				last_searched_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_search_stats_count ON search_stats(search_count);
		`},
	}

	for _, step := range steps {
		if _, err := db.conn.ExecContext(ctx, step.sql); err != nil {
			return fmt.Errorf("creating %s: %w", step.name, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
//
// Everything inside fn must go through tx. With the single connection used
// for ":memory:", a query on db.conn would wait forever for the connection
// the transaction is holding.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
