package sqlitevec

import (
	"context"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// IndexDocument upserts one document. Metadata and vector are written in one
// transaction; a document without an embedding has its vector row removed so
// it drops out of KNN results.
func (e *Engine) IndexDocument(ctx context.Context, doc domain.SearchDocument) error {
	if doc.Embedding != nil && len(doc.Embedding) != e.dim {
		return fmt.Errorf("%w: got %d, index expects %d",
			domain.ErrVectorDimMismatch, len(doc.Embedding), e.dim)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrBackendUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO search_docs(
		post_id, feed_id, owner_user_id, created_at, submitted_at,
		title, text_content, original_url, generated_summary
	) VALUES(?,?,?,?,?,?,?,?,?)
	ON CONFLICT(post_id) DO UPDATE SET
		feed_id=excluded.feed_id,
		owner_user_id=excluded.owner_user_id,
		created_at=excluded.created_at,
		submitted_at=excluded.submitted_at,
		title=excluded.title,
		text_content=excluded.text_content,
		original_url=excluded.original_url,
		generated_summary=excluded.generated_summary`,
		doc.PostID, doc.FeedID, doc.OwnerUserID,
		doc.CreatedAt.Unix(), doc.SubmittedAt.Unix(),
		doc.Title, doc.TextContent, doc.OriginalURL, doc.GeneratedSummary,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert document %d: %w", doc.PostID, err)
	}

	if doc.Embedding == nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM post_vectors WHERE rowid = ?`, doc.PostID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear vector %d: %w", doc.PostID, err)
		}
	} else {
		blob, err := sqlite_vec.SerializeFloat32(doc.Embedding)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("serialize vector %d: %w", doc.PostID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO post_vectors(rowid, embedding) VALUES(?, ?)`,
			doc.PostID, blob); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert vector %d: %w", doc.PostID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document %d: %w", doc.PostID, err)
	}
	return nil
}
