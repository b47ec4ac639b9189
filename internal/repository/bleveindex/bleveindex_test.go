package bleveindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

var fixtures = []model.Snippet{
	{ID: "s1", Title: "React class component", Description: "lifecycle methods", Code: "class App extends Component {}"},
	{ID: "s2", Title: "Python list comprehension", Code: "[x * 2 for x in xs]"},
	{ID: "s3", Title: "React hooks primer", Description: "useState and useEffect hooks in react", Code: "useState(0)"},
}

func TestMatch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	for i := range fixtures {
		require.NoError(t, idx.Index(ctx, &fixtures[i]))
	}

	t.Run("best match first", func(t *testing.T) {
		ids, err := idx.Match(ctx, "react hooks", 10)
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.Equal(t, "s3", ids[0])
	})

	t.Run("required and excluded terms", func(t *testing.T) {
		ids, err := idx.Match(ctx, "+react -lifecycle", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"s3"}, ids)
	})

	t.Run("limit", func(t *testing.T) {
		ids, err := idx.Match(ctx, "react", 1)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})

	t.Run("no hits", func(t *testing.T) {
		ids, err := idx.Match(ctx, "haskell", 10)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("malformed query", func(t *testing.T) {
		_, err := idx.Match(ctx, `"react`, 10)
		assert.True(t, errors.Is(err, apperror.ErrMalformedQuery), "got %v", err)
	})
}

func TestRemove(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	for i := range fixtures {
		require.NoError(t, idx.Index(ctx, &fixtures[i]))
	}

	require.NoError(t, idx.Remove(ctx, "s3"))
	require.NoError(t, idx.Remove(ctx, "missing"))

	ids, err := idx.Match(ctx, "hooks", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRebuild_DropsStaleDocuments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snippets.bleve")

	idx, err := Open(path)
	require.NoError(t, err)
	for i := range fixtures {
		require.NoError(t, idx.Index(ctx, &fixtures[i]))
	}
	require.NoError(t, idx.Close())

	// Reopen from disk, as the server does at startup.
	idx, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	require.NoError(t, idx.Rebuild(ctx, fixtures[:2]))

	ids, err := idx.Match(ctx, "react", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}
