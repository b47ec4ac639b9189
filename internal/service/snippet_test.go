package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/repository"
)

// =========================================================================
// MOCKS
// =========================================================================
//
// mockSnippetRepo implements repository.SnippetRepository in memory. Only
// the CRUD methods matter here; the search reads are exercised in the
// search package.

type mockSnippetRepo struct {
	snippets  map[string]*model.Snippet
	nextID    int
	createErr error
}

func newMockRepo() *mockSnippetRepo {
	return &mockSnippetRepo{snippets: make(map[string]*model.Snippet)}
}

func (m *mockSnippetRepo) Create(_ context.Context, snippet *model.Snippet) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	snippet.ID = fmt.Sprintf("mock-%d", m.nextID)
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	snippet, ok := m.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	result := *snippet
	return &result, nil
}

func (m *mockSnippetRepo) Update(_ context.Context, snippet *model.Snippet) error {
	if _, ok := m.snippets[snippet.ID]; !ok {
		return apperror.NotFound("snippet", snippet.ID)
	}
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(m.snippets, id)
	return nil
}

func (m *mockSnippetRepo) FindSnippets(context.Context, repository.SnippetQuery) ([]model.Snippet, error) {
	return nil, nil
}

func (m *mockSnippetRepo) DistinctValues(context.Context, repository.Field, string, int) ([]string, error) {
	return nil, nil
}

func (m *mockSnippetRepo) TagCounts(context.Context, string, int) ([]model.TagCount, error) {
	return nil, nil
}

// mockIndexer records which ids were indexed and removed.
type mockIndexer struct {
	indexed []string
	removed []string
	err     error
}

func (m *mockIndexer) Index(_ context.Context, s *model.Snippet) error {
	m.indexed = append(m.indexed, s.ID)
	return m.err
}

func (m *mockIndexer) Remove(_ context.Context, id string) error {
	m.removed = append(m.removed, id)
	return m.err
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func newTestService(t *testing.T) (*SnippetService, *mockSnippetRepo, *mockIndexer) {
	t.Helper()
	repo := newMockRepo()
	idx := &mockIndexer{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewSnippetService(repo, idx, logger), repo, idx
}

func validInput() SnippetInput {
	return SnippetInput{
		Title:    "React hooks",
		Code:     "const [x, setX] = useState(0)",
		Language: "javascript",
		Tags:     []string{"react", "basic"},
	}
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_Success(t *testing.T) {
	svc, _, idx := newTestService(t)

	snippet, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if snippet.ID == "" {
		t.Error("expected snippet to have an ID")
	}
	if snippet.Title != "React hooks" {
		t.Errorf("Title = %q, want %q", snippet.Title, "React hooks")
	}
	if len(snippet.Tags) != 2 || snippet.Tags[0].Name != "react" || snippet.Tags[1].Name != "basic" {
		t.Errorf("Tags = %+v, want [react basic]", snippet.Tags)
	}
	if len(idx.indexed) != 1 || idx.indexed[0] != snippet.ID {
		t.Errorf("indexed = %v, want [%s]", idx.indexed, snippet.ID)
	}
}

func TestCreate_TrimsAndDedupes(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := validInput()
	in.Title = "  spaced out  "
	in.Description = "  desc  "
	in.Tags = []string{" react ", "react", "", "React"}

	snippet, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if snippet.Title != "spaced out" {
		t.Errorf("Title = %q, want trimmed %q", snippet.Title, "spaced out")
	}
	if snippet.Description != "desc" {
		t.Errorf("Description = %q, want trimmed %q", snippet.Description, "desc")
	}
	// Tag names are case-sensitive: "React" is a different tag.
	if len(snippet.Tags) != 2 {
		t.Errorf("Tags = %+v, want [react React]", snippet.Tags)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SnippetInput)
		field  string
	}{
		{"empty title", func(in *SnippetInput) { in.Title = "" }, "title"},
		{"whitespace title", func(in *SnippetInput) { in.Title = "   " }, "title"},
		{"title too long", func(in *SnippetInput) { in.Title = strings.Repeat("a", MaxTitleLength+1) }, "title"},
		{"empty code", func(in *SnippetInput) { in.Code = "  " }, "code"},
		{"code too long", func(in *SnippetInput) { in.Code = strings.Repeat("x", MaxCodeLength+1) }, "code"},
		{"empty language", func(in *SnippetInput) { in.Language = "" }, "language"},
		{"tag too long", func(in *SnippetInput) { in.Tags = []string{strings.Repeat("t", MaxTagLength+1)} }, "tags"},
		{"too many tags", func(in *SnippetInput) {
			in.Tags = nil
			for i := 0; i <= MaxTagsPerSnippet; i++ {
				in.Tags = append(in.Tags, fmt.Sprintf("tag-%d", i))
			}
		}, "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), in)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want validation error", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
			if len(repo.snippets) != 0 {
				t.Error("nothing should be stored on validation failure")
			}
		})
	}
}

func TestCreate_RepoFailureNotIndexed(t *testing.T) {
	svc, repo, idx := newTestService(t)
	repo.createErr = errors.New("disk full")

	if _, err := svc.Create(context.Background(), validInput()); err == nil {
		t.Fatal("Create() should surface the repository error")
	}
	if len(idx.indexed) != 0 {
		t.Errorf("indexed = %v, want none", idx.indexed)
	}
}

func TestCreate_IndexFailureKeepsSnippet(t *testing.T) {
	svc, repo, idx := newTestService(t)
	idx.err = errors.New("index closed")

	snippet, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create() error = %v, index failures should not fail the write", err)
	}
	if _, ok := repo.snippets[snippet.ID]; !ok {
		t.Error("snippet should be stored")
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestGetByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	found, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Title != created.Title {
		t.Errorf("Title = %q, want %q", found.Title, created.Title)
	}

	if _, err := svc.GetByID(context.Background(), "nonexistent"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByID(context.Background(), " "); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_ReplacesFieldsAndTags(t *testing.T) {
	svc, _, idx := newTestService(t)
	created, _ := svc.Create(context.Background(), validInput())

	in := SnippetInput{
		Title:    "React hooks, revisited",
		Code:     "useEffect(() => {}, [])",
		Language: "typescript",
		Tags:     []string{"hooks"},
	}
	updated, err := svc.Update(context.Background(), created.ID, in)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Language != "typescript" {
		t.Errorf("Language = %q, want typescript", updated.Language)
	}
	if len(updated.Tags) != 1 || updated.Tags[0].Name != "hooks" {
		t.Errorf("Tags = %+v, want [hooks]", updated.Tags)
	}
	if len(idx.indexed) != 2 {
		t.Errorf("indexed %d times, want 2 (create + update)", len(idx.indexed))
	}
}

func TestUpdate_NilTagsKeepsCurrent(t *testing.T) {
	svc, _, _ := newTestService(t)
	created, _ := svc.Create(context.Background(), validInput())

	in := validInput()
	in.Tags = nil
	in.Title = "renamed"
	updated, err := svc.Update(context.Background(), created.ID, in)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Tags) != 2 {
		t.Errorf("Tags = %+v, want the original two", updated.Tags)
	}

	in.Tags = []string{}
	cleared, err := svc.Update(context.Background(), created.ID, in)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(cleared.Tags) != 0 {
		t.Errorf("Tags = %+v, want none", cleared.Tags)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "nonexistent", validInput())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_InvalidInputLeavesStoredCopy(t *testing.T) {
	svc, repo, _ := newTestService(t)
	created, _ := svc.Create(context.Background(), validInput())

	in := validInput()
	in.Language = ""
	if _, err := svc.Update(context.Background(), created.ID, in); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if repo.snippets[created.ID].Language != "javascript" {
		t.Error("stored snippet should be unchanged")
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete_Success(t *testing.T) {
	svc, _, idx := newTestService(t)
	created, _ := svc.Create(context.Background(), validInput())

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := svc.GetByID(context.Background(), created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after delete: error = %v, want ErrNotFound", err)
	}
	if len(idx.removed) != 1 || idx.removed[0] != created.ID {
		t.Errorf("removed = %v, want [%s]", idx.removed, created.ID)
	}
}

func TestDelete_Errors(t *testing.T) {
	svc, _, idx := newTestService(t)

	if err := svc.Delete(context.Background(), ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if len(idx.removed) != 0 {
		t.Errorf("removed = %v, want none", idx.removed)
	}
}

func TestNilIndexer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewSnippetService(newMockRepo(), nil, logger)

	created, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
