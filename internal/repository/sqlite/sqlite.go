// Package sqlite opens the relational store shared by the user, feed, and
// post repositories and applies its schema.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the database file with foreign keys enabled and applies
// migrations.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates all tables if they do not exist.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			fullname TEXT NOT NULL DEFAULT '',
			hashed_password TEXT NOT NULL,
			api_token TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL,
			user_embedding TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS feeds (
			feed_id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			created_by INTEGER NOT NULL REFERENCES users(user_id),
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feed_members (
			feed_id INTEGER NOT NULL REFERENCES feeds(feed_id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			PRIMARY KEY (feed_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			post_id INTEGER PRIMARY KEY AUTOINCREMENT,
			feed_id INTEGER NOT NULL REFERENCES feeds(feed_id),
			owner_user_id INTEGER NOT NULL REFERENCES users(user_id),
			created_at INTEGER NOT NULL,
			submitted_at INTEGER NOT NULL,
			original_url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			text_content TEXT NOT NULL,
			generated_summary TEXT NOT NULL DEFAULT '',
			embedding TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_feed ON posts(feed_id)`,
		`CREATE TABLE IF NOT EXISTS user_post_interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			post_id INTEGER NOT NULL REFERENCES posts(post_id),
			interaction_type TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user ON user_post_interactions(user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
