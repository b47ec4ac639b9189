// Package bleveindex is an alternative full-text backend built on bleve.
//
// The SQLite store keeps its own FTS5 index through triggers. This one lives
// outside the database, so the snippet service pushes every write to it
// (repository.SnippetIndexer) and the server rebuilds it from the store at
// startup.
package bleveindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

var (
	_ repository.TextIndex      = (*Index)(nil)
	_ repository.SnippetIndexer = (*Index)(nil)
)

// document is what gets indexed for a snippet. Field names come from the
// json tags.
type document struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

func newDocument(s *model.Snippet) document {
	return document{Title: s.Title, Description: s.Description, Code: s.Code}
}

type Index struct {
	idx bleve.Index
}

// Open opens the index at path, creating it if it does not exist.
// An empty path gives a memory-only index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return nil, fmt.Errorf("bleve: creating memory index: %w", err)
		}
		return &Index{idx: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("bleve: creating index at %s: %w", path, err)
		}
		return &Index{idx: idx}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bleve: opening index at %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

// buildMapping indexes title, description and code with the standard
// analyzer (unicode word split + lowercase + English stop words). Nothing is
// stored: hits only need the document id.
func buildMapping() mapping.IndexMapping {
	textField := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = standard.Name
		f.Store = false
		f.IncludeTermVectors = false
		return f
	}

	snippetMapping := bleve.NewDocumentMapping()
	snippetMapping.Dynamic = false
	snippetMapping.AddFieldMappingsAt("title", textField())
	snippetMapping.AddFieldMappingsAt("description", textField())
	snippetMapping.AddFieldMappingsAt("code", textField())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = snippetMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

func (i *Index) Close() error {
	return i.idx.Close()
}

// Match runs query with bleve's query-string syntax (+required, -excluded,
// "phrases", field:term) and returns ids by descending score.
func (i *Index) Match(ctx context.Context, query string, limit int) ([]string, error) {
	q := bleve.NewQueryStringQuery(query)
	if _, err := q.Parse(); err != nil {
		return nil, apperror.MalformedQuery(query, err)
	}

	if limit <= 0 {
		n, err := i.idx.DocCount()
		if err != nil {
			return nil, fmt.Errorf("bleve: counting documents: %w", err)
		}
		limit = int(n)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("bleve: searching %q: %w", query, err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Index adds or replaces the document for a snippet.
func (i *Index) Index(_ context.Context, s *model.Snippet) error {
	if err := i.idx.Index(s.ID, newDocument(s)); err != nil {
		return fmt.Errorf("bleve: indexing snippet %s: %w", s.ID, err)
	}
	return nil
}

// Remove deletes a snippet's document. Removing an unknown id is not an error.
func (i *Index) Remove(_ context.Context, id string) error {
	if err := i.idx.Delete(id); err != nil {
		return fmt.Errorf("bleve: removing snippet %s: %w", id, err)
	}
	return nil
}

// Rebuild makes the index hold exactly the given snippets: every snippet is
// (re)indexed and documents for snippets no longer in the store are dropped.
func (i *Index) Rebuild(ctx context.Context, snippets []model.Snippet) error {
	keep := make(map[string]bool, len(snippets))
	batch := i.idx.NewBatch()
	for k := range snippets {
		s := &snippets[k]
		keep[s.ID] = true
		if err := batch.Index(s.ID, newDocument(s)); err != nil {
			return fmt.Errorf("bleve: batching snippet %s: %w", s.ID, err)
		}
	}

	stale, err := i.allIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range stale {
		if !keep[id] {
			batch.Delete(id)
		}
	}

	if err := i.idx.Batch(batch); err != nil {
		return fmt.Errorf("bleve: applying rebuild batch: %w", err)
	}
	return nil
}

func (i *Index) allIDs(ctx context.Context) ([]string, error) {
	n, err := i.idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("bleve: counting documents: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(n), 0, false)
	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve: listing documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
