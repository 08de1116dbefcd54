// Package sqlitevec implements search.Engine on an embedded SQLite database
// with the sqlite-vec extension: vec0 virtual-table KNN for vector search and
// weighted conjunctive LIKE matching for keywords. Suited to single-node
// deployments that do not want to run a search server.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/scrapfeed/scrapfeed/internal/search"
)

// Compile-time check: Engine implements search.Engine.
var _ search.Engine = (*Engine)(nil)

// Config holds the engine settings.
type Config struct {
	Path         string
	Dimension    int
	KeywordLimit int
}

// Engine is a vector-KNN search backend backed by sqlite-vec.
type Engine struct {
	db           *sql.DB
	dim          int
	keywordLimit int
}

// New opens (or creates) the database file. sqlite-vec is registered for all
// future connections before the pool opens.
func New(cfg Config) (*Engine, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}

	sqlite_vec.Auto()
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	keywordLimit := cfg.KeywordLimit
	if keywordLimit <= 0 {
		keywordLimit = 1000
	}

	return &Engine{db: db, dim: cfg.Dimension, keywordLimit: keywordLimit}, nil
}

// Close closes the underlying pool.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Ping checks the database file is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// EnsureIndex creates the document table and the vec0 virtual table. The
// vector table keys on the post id directly (rowid = post_id), so no mapping
// table is needed.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS search_docs (
		post_id INTEGER PRIMARY KEY,
		feed_id INTEGER NOT NULL,
		owner_user_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		submitted_at INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		text_content TEXT NOT NULL,
		original_url TEXT NOT NULL,
		generated_summary TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_search_docs_feed ON search_docs(feed_id);
	CREATE INDEX IF NOT EXISTS idx_search_docs_submitted ON search_docs(feed_id, submitted_at);`); err != nil {
		return fmt.Errorf("create search_docs: %w", err)
	}

	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS post_vectors USING vec0(
			embedding float32[%d] distance_metric=cosine
		);`, e.dim)); err != nil {
		return fmt.Errorf("create post_vectors: %w", err)
	}
	return nil
}
