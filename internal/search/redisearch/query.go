package redisearch

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// resultFields are the fields returned to callers; embeddings stay behind.
var resultFields = []string{
	"post_id", "submitted_at", "original_url", "text_content", "title", "generated_summary",
}

// buildScopeFilter builds the pre-filter shared by every query: feed
// restriction, optional recency floor, and per-id exclusions.
func buildScopeFilter(feedID int64, excludeIDs []int64, sinceUnix int64) string {
	parts := []string{fmt.Sprintf("@feed_id:[%d %d]", feedID, feedID)}

	if sinceUnix > 0 {
		parts = append(parts, fmt.Sprintf("@submitted_at:[%d +inf]", sinceUnix))
	}

	for _, id := range excludeIDs {
		parts = append(parts, fmt.Sprintf("-@post_id:[%d %d]", id, id))
	}

	return strings.Join(parts, " ")
}

// buildKNNQuery wraps a pre-filter into a KNN vector query at breadth k.
func buildKNNQuery(filter string, k int) string {
	return fmt.Sprintf("(%s)=>[KNN %d @embedding $BLOB]", filter, k)
}

// buildKeywordQuery restricts a conjunctive text match to one feed. Terms are
// ANDed by RediSearch by default; field weights come from the index schema.
func buildKeywordQuery(feedID int64, query string) string {
	return fmt.Sprintf("@feed_id:[%d %d] (%s)", feedID, feedID, escapeQuery(query))
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// vectorToBytes serializes a float32 vector into the little-endian binary
// blob RediSearch expects.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func formatLimit(limit int) []string {
	return []string{"LIMIT", "0", strconv.Itoa(limit)}
}
