package sqlitevec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/search"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{Path: ":memory:", Dimension: 2, KeywordLimit: 100})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	// :memory: databases are per-connection
	e.db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = e.Close() })

	if err := e.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	return e
}

func doc(postID, feedID int64, title, content string, embedding []float32, age time.Duration) domain.SearchDocument {
	now := time.Now().UTC()
	return domain.SearchDocument{
		PostID:           postID,
		FeedID:           feedID,
		OwnerUserID:      1,
		CreatedAt:        now,
		SubmittedAt:      now.Add(-age),
		Title:            title,
		TextContent:      content,
		OriginalURL:      "https://example.com",
		GeneratedSummary: "",
		Embedding:        embedding,
	}
}

func TestIndexDocumentRejectsWrongDimension(t *testing.T) {
	e := testEngine(t)
	err := e.IndexDocument(context.Background(), doc(1, 1, "t", "c", []float32{1, 2, 3}, 0))
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("got %v, want ErrVectorDimMismatch", err)
	}
}

func TestKeywordSearchScopedAndWeighted(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	for _, d := range []domain.SearchDocument{
		doc(1, 1, "golang generics deep dive", "body", nil, 0),
		doc(2, 1, "unrelated", "mentions golang generics in passing", nil, 0),
		doc(3, 2, "golang generics elsewhere", "body", nil, 0), // other feed
		doc(4, 1, "golang only", "no second term", nil, 0),
	} {
		if err := e.IndexDocument(ctx, d); err != nil {
			t.Fatalf("index %d: %v", d.PostID, err)
		}
	}

	results, err := e.SearchByKeyword(ctx, "golang generics", 1)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}

	// conjunctive: post 4 lacks "generics"; scoped: post 3 is another feed
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	// title match outweighs content match
	if results[0].PostID != 1 || results[1].PostID != 2 {
		t.Fatalf("order = [%d %d], want title match first", results[0].PostID, results[1].PostID)
	}
}

func TestVectorSearchRanksAndFilters(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	for _, d := range []domain.SearchDocument{
		doc(1, 1, "near", "c", []float32{1, 0}, 0),
		doc(2, 1, "far", "c", []float32{0, 1}, 0),
		doc(3, 1, "close", "c", []float32{0.9, 0.1}, 0),
		doc(4, 1, "no vector", "c", nil, 0),
	} {
		if err := e.IndexDocument(ctx, d); err != nil {
			t.Fatalf("index %d: %v", d.PostID, err)
		}
	}

	results, err := e.SearchByVector(ctx, search.VectorQuery{
		Embedding: []float32{1, 0},
		FeedID:    1,
		Limit:     10,
		K:         10,
	})
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (vectorless post excluded)", len(results))
	}
	if results[0].PostID != 1 {
		t.Fatalf("nearest = %d, want 1", results[0].PostID)
	}

	// exclusions apply after KNN
	results, err = e.SearchByVector(ctx, search.VectorQuery{
		Embedding:  []float32{1, 0},
		FeedID:     1,
		Limit:      10,
		K:          10,
		ExcludeIDs: []int64{1},
	})
	if err != nil {
		t.Fatalf("vector search with exclusions: %v", err)
	}
	for _, r := range results {
		if r.PostID == 1 {
			t.Fatal("excluded post returned")
		}
	}
}

func TestVectorSearchRecencyWindow(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	if err := e.IndexDocument(ctx, doc(1, 1, "old", "c", []float32{1, 0}, 30*24*time.Hour)); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := e.IndexDocument(ctx, doc(2, 1, "fresh", "c", []float32{1, 0}, time.Hour)); err != nil {
		t.Fatalf("index: %v", err)
	}

	results, err := e.SearchByVector(ctx, search.VectorQuery{
		Embedding: []float32{1, 0},
		FeedID:    1,
		Limit:     10,
		K:         10,
		Since:     7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 1 || results[0].PostID != 2 {
		t.Fatalf("got %+v, want only the fresh post", results)
	}
}

func TestSearchAllRecencyOrder(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	if err := e.IndexDocument(ctx, doc(1, 1, "old", "c", nil, 48*time.Hour)); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := e.IndexDocument(ctx, doc(2, 1, "new", "c", nil, time.Hour)); err != nil {
		t.Fatalf("index: %v", err)
	}

	results, err := e.SearchAll(ctx, 1, 10, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(results) != 2 || results[0].PostID != 2 {
		t.Fatalf("got %+v, want newest first", results)
	}

	results, err = e.SearchAll(ctx, 1, 10, []int64{2})
	if err != nil {
		t.Fatalf("scan with exclusion: %v", err)
	}
	if len(results) != 1 || results[0].PostID != 1 {
		t.Fatalf("got %+v, want only the old post", results)
	}
}

func TestIndexDocumentUpsertReplacesVector(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	if err := e.IndexDocument(ctx, doc(1, 1, "v1", "c", []float32{1, 0}, 0)); err != nil {
		t.Fatalf("index: %v", err)
	}
	// reindex without an embedding drops the post from vector search
	if err := e.IndexDocument(ctx, doc(1, 1, "v2", "c", nil, 0)); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	results, err := e.SearchByVector(ctx, search.VectorQuery{
		Embedding: []float32{1, 0}, FeedID: 1, Limit: 10, K: 10,
	})
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %+v, want the vectorless doc gone from KNN", results)
	}

	all, err := e.SearchAll(ctx, 1, 10, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(all) != 1 || all[0].Title != "v2" {
		t.Fatalf("got %+v, want the updated metadata", all)
	}
}
