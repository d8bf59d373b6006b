package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// setupTestStore creates a temporary history store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func sampleResponse() *model.Response {
	return &model.Response{
		Query: "hidden wiki",
		Results: []model.Result{
			{Title: "first", URL: "https://a.example/", Snippet: "snippet a", Source: model.KindDuckDuckGo, Score: 0.9},
			{Title: "second", URL: "http://b.onion/", Snippet: "snippet b", Source: model.KindAhmia, Score: 0.7},
			{Title: "third", URL: "https://c.example/", Snippet: "snippet c", Source: model.KindSearx, Score: 0.5},
		},
		Sources: []model.BackendKind{model.KindDuckDuckGo, model.KindAhmia, model.KindSearx},
		Elapsed: 1234 * time.Millisecond,
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		s, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		defer s.Close()

		dbPath := filepath.Join(dbDir, "torsearch.db")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false fails on missing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dbDir, Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database, got nil")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		s, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		id, err := s.SaveSearch(context.Background(), sampleResponse())
		if err != nil {
			t.Fatalf("failed to save search: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}

		reopened, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen store: %v", err)
		}
		defer reopened.Close()

		rec, err := reopened.GetSearch(context.Background(), id)
		if err != nil {
			t.Fatalf("failed to get search after reopen: %v", err)
		}
		if rec.Query != "hidden wiki" {
			t.Errorf("Query = %q, want %q", rec.Query, "hidden wiki")
		}
	})
}

func TestSaveSearch(t *testing.T) {
	t.Parallel()

	t.Run("stores search with positioned results", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		id, err := s.SaveSearch(ctx, sampleResponse())
		if err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}

		rec, err := s.GetSearch(ctx, id)
		if err != nil {
			t.Fatalf("GetSearch() error = %v", err)
		}
		if rec.ResultCount != 3 {
			t.Errorf("ResultCount = %d, want 3", rec.ResultCount)
		}
		if len(rec.Sources) != 3 || rec.Sources[0] != model.KindDuckDuckGo {
			t.Errorf("Sources = %v, want duckduckgo first", rec.Sources)
		}
		if rec.Elapsed != 1234*time.Millisecond {
			t.Errorf("Elapsed = %v, want 1.234s", rec.Elapsed)
		}

		results, err := s.Results(ctx, id)
		if err != nil {
			t.Fatalf("Results() error = %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("len(results) = %d, want 3", len(results))
		}
		if results[0].Title != "first" || results[2].Title != "third" {
			t.Errorf("results out of order: %+v", results)
		}
		if results[1].Source != model.KindAhmia {
			t.Errorf("results[1].Source = %q, want ahmia", results[1].Source)
		}
	})

	t.Run("stores a search with no results", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		id, err := s.SaveSearch(ctx, &model.Response{Query: "nothing found"})
		if err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}

		results, err := s.Results(ctx, id)
		if err != nil {
			t.Fatalf("Results() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("len(results) = %d, want 0", len(results))
		}
	})
}

func TestLatestSearch(t *testing.T) {
	t.Parallel()

	t.Run("returns the most recent search", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		if _, err := s.SaveSearch(ctx, &model.Response{Query: "older"}); err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}
		if _, err := s.SaveSearch(ctx, &model.Response{Query: "newer"}); err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}

		rec, err := s.LatestSearch(ctx)
		if err != nil {
			t.Fatalf("LatestSearch() error = %v", err)
		}
		if rec.Query != "newer" {
			t.Errorf("Query = %q, want %q", rec.Query, "newer")
		}
	})

	t.Run("empty history returns ErrNoSearch", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)

		_, err := s.LatestSearch(context.Background())
		if !errors.Is(err, ErrNoSearch) {
			t.Fatalf("LatestSearch() error = %v, want ErrNoSearch", err)
		}
	})
}

func TestResultAt(t *testing.T) {
	t.Parallel()

	t.Run("resolves 1-based positions", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		id, err := s.SaveSearch(ctx, sampleResponse())
		if err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}

		r, err := s.ResultAt(ctx, id, 2)
		if err != nil {
			t.Fatalf("ResultAt() error = %v", err)
		}
		if r.URL != "http://b.onion/" {
			t.Errorf("URL = %q, want the second result", r.URL)
		}
	})

	t.Run("out-of-range positions fail", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		id, err := s.SaveSearch(ctx, sampleResponse())
		if err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}

		for _, pos := range []int{0, -1, 4, 99} {
			if _, err := s.ResultAt(ctx, id, pos); !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("ResultAt(%d) error = %v, want ErrIndexOutOfRange", pos, err)
			}
		}
	})

	t.Run("unknown search returns ErrNoSearch", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)

		_, err := s.ResultAt(context.Background(), 42, 1)
		if !errors.Is(err, ErrNoSearch) {
			t.Fatalf("ResultAt() error = %v, want ErrNoSearch", err)
		}
	})
}

func TestResultsAt(t *testing.T) {
	t.Parallel()

	t.Run("preserves requested order", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		id, err := s.SaveSearch(ctx, sampleResponse())
		if err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}

		results, err := s.ResultsAt(ctx, id, []int{3, 1})
		if err != nil {
			t.Fatalf("ResultsAt() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("len(results) = %d, want 2", len(results))
		}
		if results[0].Title != "third" || results[1].Title != "first" {
			t.Errorf("order = [%q, %q], want [third, first]", results[0].Title, results[1].Title)
		}
	})

	t.Run("one bad index fails the whole lookup", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		id, err := s.SaveSearch(ctx, sampleResponse())
		if err != nil {
			t.Fatalf("SaveSearch() error = %v", err)
		}

		_, err = s.ResultsAt(ctx, id, []int{1, 7})
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("ResultsAt() error = %v, want ErrIndexOutOfRange", err)
		}
	})
}

func TestListSearches(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three"} {
		if _, err := s.SaveSearch(ctx, &model.Response{Query: q}); err != nil {
			t.Fatalf("SaveSearch(%q) error = %v", q, err)
		}
	}

	records, err := s.ListSearches(ctx, 2)
	if err != nil {
		t.Fatalf("ListSearches() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Query != "three" || records[1].Query != "two" {
		t.Errorf("order = [%q, %q], want newest first", records[0].Query, records[1].Query)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.SaveSearch(ctx, sampleResponse())
	if err != nil {
		t.Fatalf("SaveSearch() error = %v", err)
	}

	// Retention of zero removes everything at or before now.
	removed, err := s.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := s.GetSearch(ctx, id); !errors.Is(err, ErrNoSearch) {
		t.Errorf("GetSearch() after prune error = %v, want ErrNoSearch", err)
	}
	if results, err := s.Results(ctx, id); err == nil {
		t.Errorf("Results() after prune returned %d rows, want ErrNoSearch", len(results))
	}
}
