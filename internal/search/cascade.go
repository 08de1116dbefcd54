package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/metrics"
)

// Strategy describes one step of the retrieval cascade. K is the KNN breadth
// (zero for the fallback, which has no vector constraint), RecentDays
// restricts matches to a recency window, and Fallback marks the terminal
// strategy that returns unconditionally once reached.
type Strategy struct {
	Name       string
	K          int
	RecentDays int
	Fallback   bool
}

// DefaultStrategies is the fixed escalation order: narrow KNN, wider KNN,
// recency-boosted KNN, then an unrestricted scan. K is ≥ limit in every
// vector strategy so exclusion filtering has headroom.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "knn_50", K: 50},
		{Name: "knn_100", K: 100},
		{Name: "knn_200", K: 200},
		{Name: "recent_with_relevance", K: 20, RecentDays: 7},
		{Name: "fallback_all", Fallback: true},
	}
}

// Cascade widens a vector search until it yields enough results. Strategies
// run sequentially; each is progressively more expensive and the point is to
// stop as early as recall suffices.
type Cascade struct {
	engine     Engine
	strategies []Strategy
	timeout    time.Duration
	logger     *zap.Logger
}

// NewCascade creates a cascade executor. timeout bounds every individual
// backend call; expiry counts as an ordinary strategy failure.
func NewCascade(engine Engine, strategies []Strategy, timeout time.Duration, logger *zap.Logger) *Cascade {
	return &Cascade{
		engine:     engine,
		strategies: strategies,
		timeout:    timeout,
		logger:     logger,
	}
}

// Run walks the strategy list in order. A strategy is accepted when its
// result count reaches limit; the fallback is accepted unconditionally. A
// failing strategy is logged and skipped, never fatal. When every strategy
// fails the cascade returns an empty list — a valid terminal state, not an
// error.
func (c *Cascade) Run(
	ctx context.Context, embedding []float32, feedID int64, limit int, excludeIDs []int64,
) []domain.SearchResult {
	start := time.Now()
	defer func() {
		metrics.CascadeDuration.Observe(time.Since(start).Seconds())
	}()

	for _, st := range c.strategies {
		results, err := c.attempt(ctx, st, embedding, feedID, limit, excludeIDs)
		if err != nil {
			metrics.SearchStrategyTotal.WithLabelValues(st.Name, "error").Inc()
			c.logger.Warn("search strategy failed",
				zap.String("strategy", st.Name),
				zap.Int64("feed_id", feedID),
				zap.Error(err),
			)
			continue
		}

		if len(results) >= limit || st.Fallback {
			metrics.SearchStrategyTotal.WithLabelValues(st.Name, "accepted").Inc()
			c.logger.Debug("search strategy accepted",
				zap.String("strategy", st.Name),
				zap.Int64("feed_id", feedID),
				zap.Int("results", len(results)),
			)
			return results
		}

		metrics.SearchStrategyTotal.WithLabelValues(st.Name, "insufficient").Inc()
		c.logger.Debug("search strategy returned too few results, widening",
			zap.String("strategy", st.Name),
			zap.Int("results", len(results)),
			zap.Int("limit", limit),
		)
	}

	return []domain.SearchResult{}
}

func (c *Cascade) attempt(
	ctx context.Context, st Strategy, embedding []float32, feedID int64, limit int, excludeIDs []int64,
) ([]domain.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if st.Fallback {
		return c.engine.SearchAll(ctx, feedID, limit, excludeIDs)
	}

	q := VectorQuery{
		Embedding:  embedding,
		FeedID:     feedID,
		Limit:      limit,
		ExcludeIDs: excludeIDs,
		K:          st.K,
	}
	if st.RecentDays > 0 {
		q.Since = time.Duration(st.RecentDays) * 24 * time.Hour
	}
	return c.engine.SearchByVector(ctx, q)
}
