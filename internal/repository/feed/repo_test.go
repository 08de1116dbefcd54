package feed

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
	return db
}

func seedUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (username, hashed_password, api_token, created_at)
		 VALUES (?, 'h', ?, 0)`, username, username+"-token")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed user id: %v", err)
	}
	return id
}

func TestCreateEnrollsCreator(t *testing.T) {
	db := testDB(t)
	repo := New(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	f, err := repo.Create(ctx, "Go News", "go-news", alice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !f.HasMember(alice) {
		t.Fatal("creator should be a member")
	}

	got, err := repo.GetBySlug(ctx, "go-news")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if got.FeedID != f.FeedID || got.Title != "Go News" {
		t.Fatalf("got %+v, want feed %d titled Go News", got, f.FeedID)
	}
	if !got.HasMember(alice) {
		t.Fatal("loaded feed should include creator membership")
	}
}

func TestCreateDuplicateSlug(t *testing.T) {
	db := testDB(t)
	repo := New(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	if _, err := repo.Create(ctx, "One", "same", alice); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, "Two", "same", alice); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate slug: got %v, want ErrAlreadyExists", err)
	}
}

func TestGetBySlugNotFound(t *testing.T) {
	repo := New(testDB(t))
	if _, err := repo.GetBySlug(context.Background(), "missing"); !errors.Is(err, domain.ErrFeedNotFound) {
		t.Fatalf("got %v, want ErrFeedNotFound", err)
	}
}

func TestMembershipAndListing(t *testing.T) {
	db := testDB(t)
	repo := New(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	f, err := repo.Create(ctx, "Shared", "shared", alice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.AddMember(ctx, f.FeedID, bob); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// joining twice is a no-op
	if err := repo.AddMember(ctx, f.FeedID, bob); err != nil {
		t.Fatalf("re-add member: %v", err)
	}

	got, err := repo.GetBySlug(ctx, "shared")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if len(got.MemberUserIDs) != 2 || !got.HasMember(bob) {
		t.Fatalf("members = %v, want alice and bob once each", got.MemberUserIDs)
	}

	bobFeeds, err := repo.ListByUser(ctx, bob)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(bobFeeds) != 1 || bobFeeds[0].FeedID != f.FeedID {
		t.Fatalf("bob's feeds = %v, want exactly feed %d", bobFeeds, f.FeedID)
	}
}
