package search

import (
	"sort"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// Hit is one raw backend match before normalization.
type Hit struct {
	Result domain.SearchResult
	Score  float64
}

// Unique normalizes a raw backend response: sort by score descending (stable,
// preserving backend order on ties), then drop any hit whose post id was
// already kept. First occurrence wins. Backends that fan out into internal
// sub-queries can legitimately return the same document twice; every response
// passes through here before leaving the core.
func Unique(hits []Hit) []domain.SearchResult {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	seen := make(map[int64]struct{}, len(hits))
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.Result.PostID]; dup {
			continue
		}
		seen[h.Result.PostID] = struct{}{}
		results = append(results, h.Result)
	}
	return results
}
