package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/snippet-catalog/internal/apperror"
)

// Match runs a full-text query against snippets_fts and returns snippet ids,
// best match first. ORDER BY rank is FTS5's built-in bm25() score.
//
// The raw query uses the catalog's boolean syntax (see ftsExpression), not
// FTS5's own grammar, so user input like "c++" or "a-b" is never an FTS5
// syntax error.
func (db *DB) Match(ctx context.Context, query string, limit int) ([]string, error) {
	expr, err := ftsExpression(query)
	if err != nil {
		return nil, apperror.MalformedQuery(query, err)
	}
	if expr == "" {
		return []string{}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT snippet_id FROM snippets_fts
		 WHERE snippets_fts MATCH ?
		 ORDER BY rank, rowid
		 LIMIT ?`,
		expr, sqlLimit(limit),
	)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, apperror.MalformedQuery(query, err)
		}
		return nil, fmt.Errorf("sqlite: matching %q: %w", query, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning match: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		if isFTSSyntaxError(err) {
			return nil, apperror.MalformedQuery(query, err)
		}
		return nil, fmt.Errorf("sqlite: iterating matches: %w", err)
	}
	return ids, nil
}

// isFTSSyntaxError recognises the errors SQLite raises for a MATCH expression
// it cannot parse, as opposed to I/O or locking failures.
func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5:") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "unterminated string")
}

var (
	errUnbalancedQuote = errors.New("unbalanced double quote")
	errOnlyExclusions  = errors.New("query only excludes terms")
)

// ftsExpression translates the catalog's query syntax into an FTS5 MATCH
// expression.
//
// Syntax:
//   - word        optional term; documents matching more terms rank higher
//   - +word       required term
//   - -word       excluded term
//   - word*       prefix match
//   - "a phrase"  exact phrase (may also carry + or -)
//   - ( ) < > ~   ignored
//
// Plain terms are OR-ed. When any term is required, the result must contain
// all required terms. Every term is emitted as a quoted FTS5 string, so FTS5
// operators and punctuation inside user words are taken literally.
//
// An empty expression means the query had no searchable terms.
func ftsExpression(query string) (string, error) {
	var required, optional, excluded []string

	rest := query
	for {
		rest = strings.TrimLeft(rest, " \t\r\n()<>~")
		if rest == "" {
			break
		}

		list := &optional
		switch rest[0] {
		case '+':
			list = &required
			rest = rest[1:]
		case '-':
			list = &excluded
			rest = rest[1:]
		}

		var term string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return "", errUnbalancedQuote
			}
			term = quoteFTS(rest[1:end+1], false)
			rest = rest[end+2:]
		} else {
			end := strings.IndexAny(rest, " \t\r\n()<>~\"")
			if end < 0 {
				end = len(rest)
			}
			word := rest[:end]
			rest = rest[end:]
			prefix := strings.HasSuffix(word, "*")
			word = strings.TrimRight(word, "*+-")
			term = quoteFTS(word, prefix)
		}
		if term == "" {
			continue
		}
		*list = append(*list, term)
	}

	var expr string
	switch {
	case len(required) > 0:
		expr = strings.Join(required, " AND ")
	case len(optional) > 0:
		expr = strings.Join(optional, " OR ")
	case len(excluded) > 0:
		return "", errOnlyExclusions
	default:
		return "", nil
	}

	if len(excluded) > 0 {
		expr = "(" + expr + ")"
		for _, e := range excluded {
			expr += " NOT " + e
		}
	}
	return expr, nil
}

// quoteFTS wraps s in an FTS5 string literal. Returns "" when s has no
// letters or digits (FTS5 would tokenize it to nothing).
func quoteFTS(s string, prefix bool) string {
	if strings.IndexFunc(s, isWordRune) < 0 {
		return ""
	}
	q := `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	if prefix {
		q += "*"
	}
	return q
}

func isWordRune(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 0x7f
}
