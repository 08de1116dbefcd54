package sqlitevec

import (
	"fmt"
	"strings"
)

const resultColumns = `d.post_id, d.submitted_at, d.original_url, d.text_content, d.title, d.generated_summary`

// notInClause renders an exclusion set as "AND d.post_id NOT IN (?,...)".
// Empty exclusions render nothing.
func notInClause(excludeIDs []int64) (string, []any) {
	if len(excludeIDs) == 0 {
		return "", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(excludeIDs)), ",")
	args := make([]any, len(excludeIDs))
	for i, id := range excludeIDs {
		args[i] = id
	}
	return fmt.Sprintf(" AND d.post_id NOT IN (%s)", placeholders), args
}

// buildVectorSQL assembles the KNN query: vec0 produces the k nearest rowids,
// the outer select joins metadata and applies the feed/recency/exclusion
// post-filters.
func buildVectorSQL(k int, feedID int64, sinceUnix int64, excludeIDs []int64, limit int) (string, []any) {
	var b strings.Builder
	args := []any{}

	b.WriteString(`WITH knn AS (
		SELECT rowid, distance FROM post_vectors
		WHERE embedding MATCH ? AND k = ?
	)
	SELECT `)
	b.WriteString(resultColumns)
	b.WriteString(`, knn.distance
	FROM knn JOIN search_docs d ON d.post_id = knn.rowid
	WHERE d.feed_id = ?`)
	// placeholder order: blob, k, feed
	args = append(args, nil, k, feedID)

	if sinceUnix > 0 {
		b.WriteString(` AND d.submitted_at >= ?`)
		args = append(args, sinceUnix)
	}

	notIn, notInArgs := notInClause(excludeIDs)
	b.WriteString(notIn)
	args = append(args, notInArgs...)

	b.WriteString(` ORDER BY knn.distance ASC, d.submitted_at DESC LIMIT ?`)
	args = append(args, limit)

	return b.String(), args
}

// buildKeywordSQL assembles a conjunctive keyword match: every term must
// appear in at least one field, and the score sums the weight of the best
// field each term matched (title 3, summary 2, content 1).
func buildKeywordSQL(feedID int64, terms []string, limit int) (string, []any) {
	var b strings.Builder
	args := []any{}

	b.WriteString(`SELECT `)
	b.WriteString(resultColumns)
	b.WriteString(`, (`)
	for i := range terms {
		if i > 0 {
			b.WriteString(` + `)
		}
		b.WriteString(`CASE
			WHEN d.title LIKE ? ESCAPE '\' THEN 3.0
			WHEN d.generated_summary LIKE ? ESCAPE '\' THEN 2.0
			ELSE 1.0
		END`)
		pattern := likePattern(terms[i])
		args = append(args, pattern, pattern)
	}
	b.WriteString(`) AS score
	FROM search_docs d
	WHERE d.feed_id = ?`)
	args = append(args, feedID)

	for _, term := range terms {
		b.WriteString(` AND (d.title LIKE ? ESCAPE '\' OR d.generated_summary LIKE ? ESCAPE '\' OR d.text_content LIKE ? ESCAPE '\')`)
		pattern := likePattern(term)
		args = append(args, pattern, pattern, pattern)
	}

	b.WriteString(` ORDER BY score DESC, d.submitted_at DESC LIMIT ?`)
	args = append(args, limit)

	return b.String(), args
}

// buildScanSQL assembles the recency-ordered fallback scan.
func buildScanSQL(feedID int64, excludeIDs []int64, limit int) (string, []any) {
	var b strings.Builder
	args := []any{}

	b.WriteString(`SELECT `)
	b.WriteString(resultColumns)
	b.WriteString(` FROM search_docs d WHERE d.feed_id = ?`)
	args = append(args, feedID)

	notIn, notInArgs := notInClause(excludeIDs)
	b.WriteString(notIn)
	args = append(args, notInArgs...)

	b.WriteString(` ORDER BY d.submitted_at DESC LIMIT ?`)
	args = append(args, limit)

	return b.String(), args
}

// likePattern escapes LIKE metacharacters in a term and wraps it for
// substring matching.
func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}
