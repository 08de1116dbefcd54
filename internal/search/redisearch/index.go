package redisearch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// EnsureIndex creates the feed-post index if it does not exist. Field
// weights implement the keyword ranking policy: title over summary over raw
// content.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	infoCmd := e.b().Arbitrary("FT.INFO").Args(e.indexName).Build()
	err := e.do(ctx, infoCmd).Error()
	if err == nil {
		return nil
	}
	if !isRedisErr(err, "unknown index name") {
		return fmt.Errorf("%w: ft.info: %v", domain.ErrBackendUnavailable, err)
	}

	args := []string{
		e.indexName,
		"ON", "HASH",
		"PREFIX", "1", e.docPrefix,
		"SCHEMA",
		"feed_id", "NUMERIC",
		"post_id", "NUMERIC",
		"submitted_at", "NUMERIC", "SORTABLE",
		"title", "TEXT", "WEIGHT", "3",
		"generated_summary", "TEXT", "WEIGHT", "2",
		"text_content", "TEXT",
		"embedding", "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(e.dim),
		"DISTANCE_METRIC", "COSINE",
		"M", strconv.Itoa(e.hnswM),
		"EF_CONSTRUCTION", strconv.Itoa(e.hnswEF),
	}

	createCmd := e.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := e.do(ctx, createCmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("%w: ft.create: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// IndexDocument upserts one document as a hash under the configured prefix.
// Keys are derived from PostID, so re-indexing the same post overwrites it.
func (e *Engine) IndexDocument(ctx context.Context, doc domain.SearchDocument) error {
	if doc.Embedding != nil && len(doc.Embedding) != e.dim {
		return fmt.Errorf("%w: got %d, index expects %d",
			domain.ErrVectorDimMismatch, len(doc.Embedding), e.dim)
	}

	key := e.docPrefix + strconv.FormatInt(doc.PostID, 10)

	fields := []string{
		"feed_id", strconv.FormatInt(doc.FeedID, 10),
		"post_id", strconv.FormatInt(doc.PostID, 10),
		"owner_user_id", strconv.FormatInt(doc.OwnerUserID, 10),
		"created_at", strconv.FormatInt(doc.CreatedAt.Unix(), 10),
		"submitted_at", strconv.FormatInt(doc.SubmittedAt.Unix(), 10),
		"title", doc.Title,
		"text_content", doc.TextContent,
		"original_url", doc.OriginalURL,
		"generated_summary", doc.GeneratedSummary,
	}
	if doc.Embedding != nil {
		fields = append(fields, "embedding", vectorToBytes(doc.Embedding))
	}

	cmd := e.b().Arbitrary("HSET").Keys(key).Args(fields...).Build()
	if err := e.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: hset %s: %v", domain.ErrBackendUnavailable, key, err)
	}
	return nil
}
