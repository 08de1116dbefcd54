// Package recommend assembles a personalized feed page.
package recommend

import (
	"context"

	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/search"
)

// HistoryStore resolves interaction history for presentation marking.
type HistoryStore interface {
	InteractionHistory(ctx context.Context, userID int64) (domain.InteractionHistory, error)
}

// Page is one recommendation page. Liked holds the ids of returned posts the
// user has already liked.
type Page struct {
	Posts []domain.SearchResult
	Liked map[int64]bool
}

// Service produces recommendation pages. Users with a personalization vector
// go through the widening cascade; cold users get a plain recency scan.
type Service struct {
	engine  search.Engine
	cascade *search.Cascade
	history HistoryStore
	logger  *zap.Logger
}

// NewService creates the recommendation service.
func NewService(engine search.Engine, cascade *search.Cascade, history HistoryStore, logger *zap.Logger) *Service {
	return &Service{
		engine:  engine,
		cascade: cascade,
		history: history,
		logger:  logger,
	}
}

// FeedPage returns up to limit posts for the user in the given feed,
// excluding excludeIDs. The interaction history is fetched concurrently with
// the search; a degraded page beats a failed request, so retrieval and
// history failures both collapse to empty rather than error.
func (s *Service) FeedPage(
	ctx context.Context, user *domain.User, feed *domain.Feed, limit int, excludeIDs []int64,
) (*Page, error) {
	historyCh := make(chan domain.InteractionHistory, 1)
	go func() {
		history, err := s.history.InteractionHistory(ctx, user.UserID)
		if err != nil {
			s.logger.Warn("interaction history fetch failed",
				zap.Int64("user_id", user.UserID),
				zap.Error(err),
			)
			history = domain.InteractionHistory{}
		}
		historyCh <- history
	}()

	var posts []domain.SearchResult
	if len(user.Embedding) > 0 {
		posts = s.cascade.Run(ctx, user.Embedding, feed.FeedID, limit, excludeIDs)
	} else {
		var err error
		posts, err = s.engine.SearchAll(ctx, feed.FeedID, limit, excludeIDs)
		if err != nil {
			s.logger.Warn("cold start scan failed",
				zap.Int64("feed_id", feed.FeedID),
				zap.Error(err),
			)
			posts = []domain.SearchResult{}
		}
	}

	history := <-historyCh

	liked := make(map[int64]bool, len(history.LikedPostIDs))
	for _, id := range history.LikedPostIDs {
		liked[id] = true
	}

	return &Page{Posts: posts, Liked: liked}, nil
}
