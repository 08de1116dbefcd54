package post

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/repository/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// :memory: databases are per-connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(
		`INSERT INTO users (username, hashed_password, api_token, created_at)
		 VALUES ('alice', 'h', 'tok', 0)`); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO feeds (title, slug, created_by, created_at) VALUES ('f', 'f', 1, 0)`); err != nil {
		t.Fatalf("seed feed: %v", err)
	}
	return db
}

func TestCreateAndGet(t *testing.T) {
	repo := New(testDB(t))
	ctx := context.Background()

	p := &domain.Post{
		FeedID:           1,
		OwnerUserID:      1,
		OriginalURL:      "https://example.com/a",
		Title:            "A title",
		TextContent:      "body text",
		GeneratedSummary: "summary",
		Embedding:        []float32{0.1, 0.2},
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.PostID == 0 {
		t.Fatal("expected assigned post id")
	}
	if p.SubmittedAt.IsZero() {
		t.Fatal("expected submitted_at defaulted to creation time")
	}

	got, err := repo.Get(ctx, p.PostID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != p.Title || got.OriginalURL != p.OriginalURL {
		t.Fatalf("got %+v, want title/url of %+v", got, p)
	}
	if len(got.Embedding) != 2 || got.Embedding[1] != 0.2 {
		t.Fatalf("embedding = %v, want [0.1 0.2]", got.Embedding)
	}
}

func TestCreateWithoutEmbedding(t *testing.T) {
	repo := New(testDB(t))
	ctx := context.Background()

	p := &domain.Post{FeedID: 1, OwnerUserID: 1, OriginalURL: "https://example.com", TextContent: "x"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get(ctx, p.PostID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Embedding != nil {
		t.Fatalf("embedding = %v, want nil", got.Embedding)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := New(testDB(t))
	if _, err := repo.Get(context.Background(), 42); !errors.Is(err, domain.ErrPostNotFound) {
		t.Fatalf("got %v, want ErrPostNotFound", err)
	}
}

func TestGetByIDsSkipsMissing(t *testing.T) {
	repo := New(testDB(t))
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		p := &domain.Post{FeedID: 1, OwnerUserID: 1, OriginalURL: "https://example.com", TextContent: "x"}
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, p.PostID)
	}

	posts, err := repo.GetByIDs(ctx, append(ids[:2], 999))
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}

	posts, err = repo.GetByIDs(ctx, nil)
	if err != nil {
		t.Fatalf("get by empty ids: %v", err)
	}
	if posts != nil {
		t.Fatalf("got %v, want nil for empty input", posts)
	}
}
