package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
)

func record(t *testing.T, db *DB, query string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := db.Record(context.Background(), query, nil, i); err != nil {
			t.Fatalf("Record(%q) error = %v", query, err)
		}
	}
}

func statsFor(t *testing.T, db *DB, query string) []model.StatsEntry {
	t.Helper()
	all, err := db.Popular(context.Background(), 0)
	if err != nil {
		t.Fatalf("Popular() error = %v", err)
	}
	var out []model.StatsEntry
	for _, s := range all {
		if s.Query == query {
			out = append(out, s)
		}
	}
	return out
}

func TestRecord_CountMatchesHistory(t *testing.T) {
	db := newTestDB(t)

	record(t, db, "react", 5)

	stats := statsFor(t, db, "react")
	if len(stats) != 1 {
		t.Fatalf("got %d stats rows for react, want 1", len(stats))
	}
	if stats[0].SearchCount != 5 {
		t.Errorf("SearchCount = %d, want 5", stats[0].SearchCount)
	}

	history, err := db.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(history) != 5 {
		t.Errorf("Recent() returned %d entries, want 5", len(history))
	}
}

func TestRecord_StoresFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	filters := json.RawMessage(`{"languages":["go"]}`)
	if _, err := db.Record(ctx, "channels", filters, 3); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := db.Record(ctx, "plain", nil, 0); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	history, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(history))
	}
	// Newest first.
	if history[0].Query != "plain" || history[0].Filters != nil {
		t.Errorf("history[0] = %+v, want plain with null filters", history[0])
	}
	if history[1].ResultCount != 3 || string(history[1].Filters) != string(filters) {
		t.Errorf("history[1] = %+v, want channels with filters", history[1])
	}
}

// Two first-time records of the same query must end up as one row with
// count 2. A file database is used so the two transactions really run on
// separate connections.
func TestRecord_ConcurrentFirstSearch(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Record(context.Background(), "react", nil, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	stats := statsFor(t, db, "react")
	if len(stats) != 1 {
		t.Fatalf("got %d stats rows for react, want exactly 1", len(stats))
	}
	if stats[0].SearchCount != 2 {
		t.Errorf("SearchCount = %d, want 2", stats[0].SearchCount)
	}
}

func TestPopular_SortedAndLimited(t *testing.T) {
	db := newTestDB(t)

	record(t, db, "go", 3)
	record(t, db, "rust", 1)
	record(t, db, "react", 5)
	record(t, db, "zig", 2)

	popular, err := db.Popular(context.Background(), 3)
	if err != nil {
		t.Fatalf("Popular() error = %v", err)
	}
	if len(popular) != 3 {
		t.Fatalf("Popular(3) returned %d entries", len(popular))
	}
	want := []string{"react", "go", "zig"}
	for i, s := range popular {
		if s.Query != want[i] {
			t.Errorf("popular[%d] = %q, want %q", i, s.Query, want[i])
		}
		if i > 0 && popular[i-1].SearchCount < s.SearchCount {
			t.Errorf("popular not sorted by count: %d before %d", popular[i-1].SearchCount, s.SearchCount)
		}
	}
}

func TestDeleteOne_LeavesStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	record(t, db, "react", 2)
	history, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}

	if err := db.DeleteOne(ctx, history[0].ID); err != nil {
		t.Fatalf("DeleteOne() error = %v", err)
	}

	after, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(after) != 1 || after[0].ID != history[1].ID {
		t.Errorf("Recent() after delete = %+v, want only %s", after, history[1].ID)
	}
	if stats := statsFor(t, db, "react"); stats[0].SearchCount != 2 {
		t.Errorf("SearchCount after delete = %d, want 2", stats[0].SearchCount)
	}
}

func TestDeleteOne_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.DeleteOne(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteOne() error = %v, want ErrNotFound", err)
	}
}

func TestClearAll_LeavesStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	record(t, db, "react", 2)
	record(t, db, "go", 1)

	if err := db.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}

	history, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Recent() after clear returned %d entries", len(history))
	}
	popular, err := db.Popular(ctx, 10)
	if err != nil {
		t.Fatalf("Popular() error = %v", err)
	}
	if len(popular) != 2 {
		t.Errorf("Popular() after clear returned %d entries, want 2", len(popular))
	}
}
