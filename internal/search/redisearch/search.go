package redisearch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/search"
)

// SearchByKeyword runs a BM25 full-text match restricted to the feed. All
// terms must match; title/summary/content weighting is baked into the index
// schema. Capped at the configured keyword limit.
func (e *Engine) SearchByKeyword(
	ctx context.Context, query string, feedID int64,
) ([]domain.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	args := []string{e.indexName, buildKeywordQuery(feedID, query)}
	args = append(args, "RETURN", strconv.Itoa(len(resultFields)))
	args = append(args, resultFields...)
	args = append(args, "WITHSCORES")
	args = append(args, formatLimit(e.keywordLimit)...)
	args = append(args, "DIALECT", "2")

	cmd := e.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := e.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: keyword search: %v", domain.ErrBackendUnavailable, err)
	}

	hits, err := parseScoredHits(raw)
	if err != nil {
		return nil, err
	}
	return search.Unique(hits), nil
}

// SearchByVector runs one KNN query at the breadth given in q. The exclusion
// set and feed restriction are pushed down as a pre-filter so the breadth
// budget is not wasted on documents that would be dropped anyway.
func (e *Engine) SearchByVector(
	ctx context.Context, q search.VectorQuery,
) ([]domain.SearchResult, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("embedding is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	var sinceUnix int64
	if q.Since > 0 {
		sinceUnix = time.Now().Add(-q.Since).Unix()
	}
	filter := buildScopeFilter(q.FeedID, q.ExcludeIDs, sinceUnix)

	args := []string{e.indexName, buildKNNQuery(filter, q.K)}
	args = append(args, "RETURN", strconv.Itoa(len(resultFields)+1))
	args = append(args, resultFields...)
	args = append(args, "__embedding_score")
	args = append(args, "SORTBY", "__embedding_score")
	args = append(args, formatLimit(q.Limit)...)
	args = append(args, "PARAMS", "2", "BLOB", vectorToBytes(q.Embedding))
	args = append(args, "DIALECT", "2")

	cmd := e.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := e.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", domain.ErrBackendUnavailable, err)
	}

	hits, err := parseKNNHits(raw)
	if err != nil {
		return nil, err
	}
	return search.Unique(hits), nil
}

// SearchAll scans the feed by recency descending, honoring exclusions. The
// terminal fallback: no vector, no text match.
func (e *Engine) SearchAll(
	ctx context.Context, feedID int64, limit int, excludeIDs []int64,
) ([]domain.SearchResult, error) {
	args := []string{e.indexName, buildScopeFilter(feedID, excludeIDs, 0)}
	args = append(args, "RETURN", strconv.Itoa(len(resultFields)))
	args = append(args, resultFields...)
	args = append(args, "SORTBY", "submitted_at", "DESC")
	args = append(args, formatLimit(limit)...)
	args = append(args, "DIALECT", "2")

	cmd := e.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := e.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", domain.ErrBackendUnavailable, err)
	}

	hits, err := parseUnscoredHits(raw)
	if err != nil {
		return nil, err
	}
	return search.Unique(hits), nil
}

// --- Result parsing ---

// parseScoredHits parses a WITHSCORES response.
// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
func parseScoredHits(raw []rueidis.RedisMessage) ([]search.Hit, error) {
	total, err := parseTotal(raw)
	if err != nil || total == 0 {
		return nil, err
	}

	hits := make([]search.Hit, 0, total)
	for i := 1; i+2 < len(raw); i += 3 {
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		hits = append(hits, search.Hit{
			Result: resultFromFields(parseFieldPairs(fields)),
			Score:  score,
		})
	}
	return hits, nil
}

// parseKNNHits parses a KNN response where the cosine distance rides along as
// the __embedding_score field. 2-stride: [total, key1, fields1, ...]
func parseKNNHits(raw []rueidis.RedisMessage) ([]search.Hit, error) {
	total, err := parseTotal(raw)
	if err != nil || total == 0 {
		return nil, err
	}

	hits := make([]search.Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		m := parseFieldPairs(fields)

		var score float64
		if distStr, ok := m["__embedding_score"]; ok {
			if dist, err := strconv.ParseFloat(distStr, 64); err == nil {
				score = max(0, 1.0-dist) // cosine distance → similarity, clamped to [0,1]
			}
		}

		hits = append(hits, search.Hit{Result: resultFromFields(m), Score: score})
	}
	return hits, nil
}

// parseUnscoredHits parses a plain SORTBY response; every hit scores zero so
// the stable normalizer keeps recency order intact.
func parseUnscoredHits(raw []rueidis.RedisMessage) ([]search.Hit, error) {
	total, err := parseTotal(raw)
	if err != nil || total == 0 {
		return nil, err
	}

	hits := make([]search.Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		hits = append(hits, search.Hit{Result: resultFromFields(parseFieldPairs(fields))})
	}
	return hits, nil
}

func parseTotal(raw []rueidis.RedisMessage) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse total: %w", err)
	}
	return int(total), nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func resultFromFields(m map[string]string) domain.SearchResult {
	postID, _ := strconv.ParseInt(m["post_id"], 10, 64)
	submittedUnix, _ := strconv.ParseInt(m["submitted_at"], 10, 64)

	return domain.SearchResult{
		PostID:           postID,
		SubmittedAt:      time.Unix(submittedUnix, 0).UTC(),
		OriginalURL:      m["original_url"],
		TextContent:      m["text_content"],
		Title:            m["title"],
		GeneratedSummary: m["generated_summary"],
	}
}
