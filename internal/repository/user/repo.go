// Package user persists accounts, API tokens, the append-only interaction
// log, and the stored personalization vector.
package user

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// Repo is the user repository.
type Repo struct {
	db *sql.DB
}

// New creates a user repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Create registers an account with a bcrypt-hashed password and a fresh API
// token. Returns domain.ErrAlreadyExists when the username is taken.
func (r *Repo) Create(ctx context.Context, username, password, fullname string) (*domain.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	createdAt := time.Now().Unix()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, fullname, hashed_password, api_token, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		username, fullname, string(hashed), token, createdAt)
	if err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("username %q: %w", username, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	userID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &domain.User{
		UserID:         userID,
		Username:       username,
		Fullname:       fullname,
		HashedPassword: string(hashed),
		APIToken:       token,
		CreatedAt:      time.Unix(createdAt, 0).UTC(),
	}, nil
}

// Authenticate verifies a username/password pair and returns the account.
// Wrong username and wrong password both map to domain.ErrUnauthorized.
func (r *Repo) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := r.getBy(ctx, "username = ?", username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)) != nil {
		return nil, domain.ErrUnauthorized
	}
	return u, nil
}

// Get fetches a user by id.
func (r *Repo) Get(ctx context.Context, userID int64) (*domain.User, error) {
	return r.getBy(ctx, "user_id = ?", userID)
}

// GetByToken fetches a user by API token.
func (r *Repo) GetByToken(ctx context.Context, token string) (*domain.User, error) {
	return r.getBy(ctx, "api_token = ?", token)
}

func (r *Repo) getBy(ctx context.Context, cond string, arg any) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, username, fullname, hashed_password, api_token, created_at, user_embedding
		 FROM users WHERE `+cond, arg)

	var (
		u             domain.User
		createdAt     int64
		embeddingJSON sql.NullString
	)
	if err := row.Scan(&u.UserID, &u.Username, &u.Fullname, &u.HashedPassword,
		&u.APIToken, &createdAt, &embeddingJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()

	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &u.Embedding); err != nil {
			return nil, fmt.Errorf("decode user embedding: %w", err)
		}
	}
	return &u, nil
}

// RecordInteraction appends one like/view entry to the log. Entries are never
// updated or removed; duplicates are allowed.
func (r *Repo) RecordInteraction(
	ctx context.Context, userID, postID int64, typ domain.InteractionType,
) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO user_post_interactions (user_id, post_id, interaction_type, created_at)
		 VALUES (?, ?, ?, ?)`,
		userID, postID, string(typ), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert interaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// InteractionHistory reconstructs the per-user liked/viewed sets from the log.
func (r *Repo) InteractionHistory(ctx context.Context, userID int64) (domain.InteractionHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT post_id, interaction_type FROM user_post_interactions WHERE user_id = ?`,
		userID)
	if err != nil {
		return domain.InteractionHistory{}, fmt.Errorf("select interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history domain.InteractionHistory
	for rows.Next() {
		var (
			postID int64
			typ    string
		)
		if err := rows.Scan(&postID, &typ); err != nil {
			return domain.InteractionHistory{}, fmt.Errorf("scan interaction: %w", err)
		}
		switch domain.InteractionType(typ) {
		case domain.InteractionLike:
			history.LikedPostIDs = append(history.LikedPostIDs, postID)
		case domain.InteractionView:
			history.ViewedPostIDs = append(history.ViewedPostIDs, postID)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.InteractionHistory{}, fmt.Errorf("iterate interactions: %w", err)
	}
	return history, nil
}

// UpdateEmbedding replaces the stored personalization vector wholesale.
func (r *Repo) UpdateEmbedding(ctx context.Context, userID int64, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode user embedding: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET user_embedding = ? WHERE user_id = ?`, string(data), userID)
	if err != nil {
		return fmt.Errorf("update user embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
