// Package search defines the engine abstraction the recommendation core is
// built on, plus the retrieval cascade that drives it. Backends live in the
// redisearch and sqlitevec subpackages and are selected by configuration at
// process start.
package search

import (
	"context"
	"time"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// Engine is the capability set every search backend implements.
//
// Contract shared by the three query methods: results never contain an id
// from ExcludeIDs, are restricted to the given feed, tie-break on recency
// descending, and never exceed the requested limit.
type Engine interface {
	// EnsureIndex creates the backend index if it does not exist yet.
	EnsureIndex(ctx context.Context) error

	// IndexDocument upserts one document, idempotent on PostID.
	IndexDocument(ctx context.Context, doc domain.SearchDocument) error

	// SearchByKeyword runs a conjunctive full-text match restricted to the
	// feed, title weighted over summary over raw content. Capped at a fixed
	// maximum, no pagination.
	SearchByKeyword(ctx context.Context, query string, feedID int64) ([]domain.SearchResult, error)

	// SearchByVector runs a single approximate nearest-neighbor query at the
	// breadth given in q. Escalation across breadths is the caller's job.
	SearchByVector(ctx context.Context, q VectorQuery) ([]domain.SearchResult, error)

	// SearchAll returns everything in the feed ordered by recency descending,
	// respecting the exclusion set. Terminal fallback.
	SearchAll(ctx context.Context, feedID int64, limit int, excludeIDs []int64) ([]domain.SearchResult, error)
}

// VectorQuery is the input for one nearest-neighbor search call.
// K is how many neighbors the backend retrieves before filtering; Limit is
// how many results come back after it. K stays ahead of Limit to leave
// headroom for excluded items.
type VectorQuery struct {
	Embedding  []float32
	FeedID     int64
	Limit      int
	ExcludeIDs []int64
	K          int
	Since      time.Duration // restrict to documents submitted within this window; zero = unbounded
}
