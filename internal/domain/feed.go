package domain

import "time"

// Feed is a shared collection of posts, the scope every search and
// recommendation operation is restricted to.
type Feed struct {
	FeedID        int64
	Title         string
	Slug          string
	CreatedBy     int64
	CreatedAt     time.Time
	MemberUserIDs []int64
}

// HasMember reports whether userID belongs to the feed.
func (f *Feed) HasMember(userID int64) bool {
	for _, id := range f.MemberUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
