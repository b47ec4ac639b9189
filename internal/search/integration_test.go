package search_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository/sqlite"
	"github.com/sakif/snippet-catalog/internal/search"
)

// These tests run the search pipeline against a real SQLite store with its
// FTS5 index.

func newStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func add(t *testing.T, db *sqlite.DB, title, language, description string, tags ...string) *model.Snippet {
	t.Helper()
	s := &model.Snippet{Title: title, Language: language, Description: description, Code: "// " + title}
	for _, name := range tags {
		s.Tags = append(s.Tags, model.Tag{Name: name})
	}
	require.NoError(t, db.Create(context.Background(), s))
	return s
}

func TestPipeline_QueryFiltersAndHistory(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	logger := quietLogger()

	hooks := add(t, db, "React hooks", "javascript", "useState and useEffect", "react", "basic")
	add(t, db, "React class components", "javascript", "lifecycle methods", "react")
	add(t, db, "Python decorators", "python", "functions wrapping functions", "basic")

	tracker := search.NewTracker(db, logger)
	recorder := search.NewRecorder(tracker, 10, logger)
	recorder.Start()
	svc := search.NewService(db, search.NewEngine(db, time.Second, 100), search.NewHighlighter("", ""), recorder, logger)

	result, err := svc.Search(ctx, search.Request{
		Query:     "react",
		Filters:   model.FilterSpec{Tags: []string{"react", "basic"}},
		Highlight: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, hooks.ID, result.Hits[0].ID)
	assert.Equal(t, "<mark>React</mark> hooks", result.Hits[0].Highlight.Title)
	assert.Equal(t, []string{"react", "basic"}, []string{result.Hits[0].Tags[0].Name, result.Hits[0].Tags[1].Name})

	recorder.Stop()

	history, err := tracker.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "react", history[0].Query)
	assert.Equal(t, 1, history[0].ResultCount)
	assert.JSONEq(t, `{"tags":["react","basic"]}`, string(history[0].Filters))
}

func TestPipeline_EmptyQueryPythonBasicOldestFirst(t *testing.T) {
	db := newStore(t)
	logger := quietLogger()

	first := add(t, db, "Python lists", "python", "", "basic")
	add(t, db, "Go maps", "go", "", "basic")
	second := add(t, db, "Python dicts", "Python", "", "basic", "collections")
	add(t, db, "Python asyncio", "python", "", "advanced")

	svc := search.NewService(db, search.NewEngine(db, time.Second, 100), nil, nil, logger)

	result, err := svc.Search(context.Background(), search.Request{
		Filters: model.FilterSpec{
			Languages: []string{"python"},
			Tags:      []string{"basic"},
			SortBy:    model.SortByCreatedAt,
			SortOrder: model.SortAsc,
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, first.ID, result.Hits[0].ID)
	assert.Equal(t, second.ID, result.Hits[1].ID)
}

func TestPipeline_SuggestPy(t *testing.T) {
	db := newStore(t)
	add(t, db, "Python decorators", "python", "", "python")
	add(t, db, "pytest fixtures", "python", "", "testing")
	add(t, db, "Go channels", "go", "", "pydantic")

	svc := search.NewService(db, search.NewEngine(db, time.Second, 100), nil, nil, quietLogger())

	items, err := svc.Suggest(context.Background(), "py", 5)
	require.NoError(t, err)

	byType := map[model.SuggestionType][]string{}
	for _, it := range items {
		byType[it.Type] = append(byType[it.Type], it.Text)
		if it.Type == model.SuggestionTag {
			require.NotNil(t, it.Count)
		}
	}
	assert.Len(t, byType[model.SuggestionTitle], 2)
	assert.ElementsMatch(t, []string{"python", "pydantic"}, byType[model.SuggestionTag])
	assert.Equal(t, []string{"python"}, byType[model.SuggestionLanguage])
}

func TestTracker_ConcurrentFirstRecord(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tracker := search.NewTracker(db, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Record(context.Background(), "react", nil, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	popular, err := tracker.Popular(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, "react", popular[0].Query)
	assert.Equal(t, 2, popular[0].SearchCount)
}

func TestTracker_DeleteOneKeepsStats(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	tracker := search.NewTracker(db, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := tracker.Record(ctx, "react", nil, i)
		require.NoError(t, err)
	}
	history, err := tracker.Recent(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, tracker.DeleteOne(ctx, history[0].ID))

	after, err := tracker.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, after, 2)
	popular, err := tracker.Popular(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, popular[0].SearchCount)
}
