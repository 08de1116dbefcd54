// Package post persists scraped posts and their content embeddings.
package post

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// Repo is the post repository.
type Repo struct {
	db *sql.DB
}

// New creates a post repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Create inserts a post and fills in its assigned id and creation time.
func (r *Repo) Create(ctx context.Context, p *domain.Post) error {
	embeddingJSON, err := encodeEmbedding(p.Embedding)
	if err != nil {
		return err
	}

	createdAt := time.Now().Unix()
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = time.Unix(createdAt, 0).UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (feed_id, owner_user_id, created_at, submitted_at,
			original_url, title, text_content, generated_summary, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FeedID, p.OwnerUserID, createdAt, p.SubmittedAt.Unix(),
		p.OriginalURL, p.Title, p.TextContent, p.GeneratedSummary, embeddingJSON)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	p.PostID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return nil
}

// Get fetches a post by id.
func (r *Repo) Get(ctx context.Context, postID int64) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE post_id = ?`, postID)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByIDs fetches the posts for the given ids. Missing ids are skipped, and
// order is not guaranteed.
func (r *Repo) GetByIDs(ctx context.Context, postIDs []int64) ([]domain.Post, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(postIDs)), ",")
	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE post_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// ListByFeed returns a feed's posts newest first.
func (r *Repo) ListByFeed(ctx context.Context, feedID int64, limit int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE feed_id = ?
		 ORDER BY submitted_at DESC, post_id DESC LIMIT ?`, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

const postColumns = `post_id, feed_id, owner_user_id, created_at, submitted_at,
	original_url, title, text_content, generated_summary, embedding`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var (
		p             domain.Post
		createdAt     int64
		submittedAt   int64
		embeddingJSON sql.NullString
	)
	if err := row.Scan(&p.PostID, &p.FeedID, &p.OwnerUserID, &createdAt, &submittedAt,
		&p.OriginalURL, &p.Title, &p.TextContent, &p.GeneratedSummary, &embeddingJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.SubmittedAt = time.Unix(submittedAt, 0).UTC()

	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &p.Embedding); err != nil {
			return nil, fmt.Errorf("decode post embedding: %w", err)
		}
	}
	return &p, nil
}

func encodeEmbedding(embedding []float32) (sql.NullString, error) {
	if embedding == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode post embedding: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
