// Package feed persists feeds and their membership lists.
package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// Repo is the feed repository.
type Repo struct {
	db *sql.DB
}

// New creates a feed repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Create inserts a feed and enrolls the creator as its first member.
// Returns domain.ErrAlreadyExists when the slug is taken.
func (r *Repo) Create(ctx context.Context, title, slug string, createdBy int64) (*domain.Feed, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	createdAt := time.Now().Unix()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO feeds (title, slug, created_by, created_at) VALUES (?, ?, ?, ?)`,
		title, slug, createdBy, createdAt)
	if err != nil {
		_ = tx.Rollback()
		if isConstraintErr(err) {
			return nil, fmt.Errorf("slug %q: %w", slug, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert feed: %w", err)
	}

	feedID, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO feed_members (feed_id, user_id) VALUES (?, ?)`,
		feedID, createdBy); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &domain.Feed{
		FeedID:        feedID,
		Title:         title,
		Slug:          slug,
		CreatedBy:     createdBy,
		CreatedAt:     time.Unix(createdAt, 0).UTC(),
		MemberUserIDs: []int64{createdBy},
	}, nil
}

// GetBySlug fetches a feed and its member list.
func (r *Repo) GetBySlug(ctx context.Context, slug string) (*domain.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT feed_id, title, slug, created_by, created_at FROM feeds WHERE slug = ?`, slug)

	var (
		f         domain.Feed
		createdAt int64
	)
	if err := row.Scan(&f.FeedID, &f.Title, &f.Slug, &f.CreatedBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFeedNotFound
		}
		return nil, fmt.Errorf("select feed: %w", err)
	}
	f.CreatedAt = time.Unix(createdAt, 0).UTC()

	members, err := r.members(ctx, f.FeedID)
	if err != nil {
		return nil, err
	}
	f.MemberUserIDs = members
	return &f, nil
}

// AddMember enrolls a user into a feed. Enrolling twice is a no-op.
func (r *Repo) AddMember(ctx context.Context, feedID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feed_members (feed_id, user_id) VALUES (?, ?)`,
		feedID, userID)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// ListByUser returns the feeds a user belongs to, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]domain.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.feed_id, f.title, f.slug, f.created_by, f.created_at
		 FROM feeds f JOIN feed_members m ON m.feed_id = f.feed_id
		 WHERE m.user_id = ?
		 ORDER BY f.created_at DESC, f.feed_id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []domain.Feed
	for rows.Next() {
		var (
			f         domain.Feed
			createdAt int64
		)
		if err := rows.Scan(&f.FeedID, &f.Title, &f.Slug, &f.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		f.CreatedAt = time.Unix(createdAt, 0).UTC()
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

func (r *Repo) members(ctx context.Context, feedID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM feed_members WHERE feed_id = ? ORDER BY user_id`, feedID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return ids, nil
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
