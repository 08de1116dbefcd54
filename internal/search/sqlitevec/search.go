package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/search"
)

// SearchByKeyword runs a conjunctive substring match across title, summary,
// and content, scored by field weight. Capped at the configured keyword limit.
func (e *Engine) SearchByKeyword(
	ctx context.Context, query string, feedID int64,
) ([]domain.SearchResult, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("query is required")
	}

	stmt, args := buildKeywordSQL(feedID, terms, e.keywordLimit)
	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword search: %v", domain.ErrBackendUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	hits, err := scanHits(rows, true)
	if err != nil {
		return nil, err
	}
	return search.Unique(hits), nil
}

// SearchByVector runs one KNN query at the breadth given in q. vec0 retrieves
// the k nearest vectors, then the feed/recency/exclusion filters apply on the
// joined metadata — which is why k stays ahead of limit.
func (e *Engine) SearchByVector(
	ctx context.Context, q search.VectorQuery,
) ([]domain.SearchResult, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("embedding is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if len(q.Embedding) != e.dim {
		return nil, fmt.Errorf("%w: got %d, index expects %d",
			domain.ErrVectorDimMismatch, len(q.Embedding), e.dim)
	}

	blob, err := sqlite_vec.SerializeFloat32(q.Embedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	var sinceUnix int64
	if q.Since > 0 {
		sinceUnix = time.Now().Add(-q.Since).Unix()
	}

	stmt, args := buildVectorSQL(q.K, q.FeedID, sinceUnix, q.ExcludeIDs, q.Limit)
	args[0] = blob // first placeholder is the MATCH blob

	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", domain.ErrBackendUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	hits, err := scanVectorHits(rows)
	if err != nil {
		return nil, err
	}
	return search.Unique(hits), nil
}

// SearchAll scans the feed by recency descending, honoring exclusions.
func (e *Engine) SearchAll(
	ctx context.Context, feedID int64, limit int, excludeIDs []int64,
) ([]domain.SearchResult, error) {
	stmt, args := buildScanSQL(feedID, excludeIDs, limit)
	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", domain.ErrBackendUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	hits, err := scanHits(rows, false)
	if err != nil {
		return nil, err
	}
	return search.Unique(hits), nil
}

// scanHits reads result rows, optionally with a trailing score column.
func scanHits(rows *sql.Rows, scored bool) ([]search.Hit, error) {
	var hits []search.Hit
	for rows.Next() {
		var (
			r             domain.SearchResult
			submittedUnix int64
			score         float64
		)
		var err error
		if scored {
			err = rows.Scan(&r.PostID, &submittedUnix, &r.OriginalURL,
				&r.TextContent, &r.Title, &r.GeneratedSummary, &score)
		} else {
			err = rows.Scan(&r.PostID, &submittedUnix, &r.OriginalURL,
				&r.TextContent, &r.Title, &r.GeneratedSummary)
		}
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.SubmittedAt = time.Unix(submittedUnix, 0).UTC()
		hits = append(hits, search.Hit{Result: r, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return hits, nil
}

// scanVectorHits reads KNN rows, mapping cosine distance to a similarity score.
func scanVectorHits(rows *sql.Rows) ([]search.Hit, error) {
	var hits []search.Hit
	for rows.Next() {
		var (
			r             domain.SearchResult
			submittedUnix int64
			distance      float64
		)
		if err := rows.Scan(&r.PostID, &submittedUnix, &r.OriginalURL,
			&r.TextContent, &r.Title, &r.GeneratedSummary, &distance); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.SubmittedAt = time.Unix(submittedUnix, 0).UTC()
		hits = append(hits, search.Hit{Result: r, Score: max(0, 1.0-distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return hits, nil
}
