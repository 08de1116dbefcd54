package domain

import "time"

// User is an account holder. Embedding is the personalization vector derived
// from the interaction history; nil until the first like or view.
type User struct {
	UserID         int64
	Username       string
	Fullname       string
	HashedPassword string
	APIToken       string
	CreatedAt      time.Time
	Embedding      []float32
}

// InteractionType distinguishes entries in the interaction log.
type InteractionType string

const (
	InteractionLike InteractionType = "like"
	InteractionView InteractionType = "view"
)

// Interaction is one append-only log entry. Interactions are never retracted.
type Interaction struct {
	ID        int64
	UserID    int64
	PostID    int64
	Type      InteractionType
	CreatedAt time.Time
}

// InteractionHistory is the per-user view reconstructed from the log.
// Order is irrelevant; duplicates are possible and harmless.
type InteractionHistory struct {
	LikedPostIDs  []int64
	ViewedPostIDs []int64
}

// Empty reports whether the user has interacted with anything at all.
func (h InteractionHistory) Empty() bool {
	return len(h.LikedPostIDs) == 0 && len(h.ViewedPostIDs) == 0
}
