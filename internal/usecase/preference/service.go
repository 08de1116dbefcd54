package preference

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// recomputeTimeout bounds the detached recompute so it cannot leak.
const recomputeTimeout = 30 * time.Second

// UserStore is the slice of the user repository the service needs.
type UserStore interface {
	RecordInteraction(ctx context.Context, userID, postID int64, typ domain.InteractionType) (int64, error)
	InteractionHistory(ctx context.Context, userID int64) (domain.InteractionHistory, error)
	UpdateEmbedding(ctx context.Context, userID int64, embedding []float32) error
}

// PostStore resolves posts referenced by the interaction log.
type PostStore interface {
	Get(ctx context.Context, postID int64) (*domain.Post, error)
	GetByIDs(ctx context.Context, postIDs []int64) ([]domain.Post, error)
}

// Service records likes and views and keeps the stored user embedding in sync
// with the interaction history.
type Service struct {
	users  UserStore
	posts  PostStore
	logger *zap.Logger
}

// NewService creates the preference service.
func NewService(users UserStore, posts PostStore, logger *zap.Logger) *Service {
	return &Service{users: users, posts: posts, logger: logger}
}

// Like records a like and schedules an embedding recompute.
func (s *Service) Like(ctx context.Context, userID, postID int64) error {
	return s.record(ctx, userID, postID, domain.InteractionLike)
}

// View records a view and schedules an embedding recompute.
func (s *Service) View(ctx context.Context, userID, postID int64) error {
	return s.record(ctx, userID, postID, domain.InteractionView)
}

func (s *Service) record(ctx context.Context, userID, postID int64, typ domain.InteractionType) error {
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return err
	}
	if _, err := s.users.RecordInteraction(ctx, userID, postID, typ); err != nil {
		return err
	}

	// The interaction is already committed; the recompute must not delay the
	// response or fail the request. It runs detached from the request context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
		defer cancel()
		if err := s.Recompute(ctx, userID); err != nil {
			s.logger.Warn("user embedding recompute failed",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Recompute rebuilds the user's embedding from their full interaction
// history. A post in the log counts for every group it appears in; a post
// both liked and viewed contributes to both averages.
func (s *Service) Recompute(ctx context.Context, userID int64) error {
	history, err := s.users.InteractionHistory(ctx, userID)
	if err != nil {
		return err
	}
	if history.Empty() {
		return nil
	}

	liked, err := s.lookupEmbeddings(ctx, history.LikedPostIDs)
	if err != nil {
		return err
	}
	viewed, err := s.lookupEmbeddings(ctx, history.ViewedPostIDs)
	if err != nil {
		return err
	}

	combined := Combine(liked, viewed)
	if combined == nil {
		// Every interacted post is still waiting on its embedding.
		return nil
	}
	return s.users.UpdateEmbedding(ctx, userID, combined)
}

func (s *Service) lookupEmbeddings(ctx context.Context, postIDs []int64) ([][]float32, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	posts, err := s.posts.GetByIDs(ctx, postIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64][]float32, len(posts))
	for _, p := range posts {
		byID[p.PostID] = p.Embedding
	}

	// Duplicate log entries keep their multiplicity in the average.
	embeddings := make([][]float32, 0, len(postIDs))
	for _, id := range postIDs {
		embeddings = append(embeddings, byID[id])
	}
	return embeddings, nil
}
