package domain

import "time"

// Post is a single piece of scraped content. The same URL submitted to two
// feeds produces two posts.
type Post struct {
	PostID           int64
	FeedID           int64
	OwnerUserID      int64
	CreatedAt        time.Time
	SubmittedAt      time.Time
	OriginalURL      string
	Title            string
	TextContent      string
	GeneratedSummary string
	Embedding        []float32 // nil until the embedding provider has run
}

// SearchDocument is the write-side shape indexed into a search engine.
// Embedding may be nil; such documents are reachable through keyword and
// fallback search only.
type SearchDocument struct {
	FeedID           int64
	PostID           int64
	OwnerUserID      int64
	CreatedAt        time.Time
	SubmittedAt      time.Time
	Title            string
	TextContent      string
	OriginalURL      string
	GeneratedSummary string
	Embedding        []float32
}

// SearchDocumentFromPost maps a persisted post into its indexable form.
func SearchDocumentFromPost(p *Post) SearchDocument {
	return SearchDocument{
		FeedID:           p.FeedID,
		PostID:           p.PostID,
		OwnerUserID:      p.OwnerUserID,
		CreatedAt:        p.CreatedAt,
		SubmittedAt:      p.SubmittedAt,
		Title:            p.Title,
		TextContent:      p.TextContent,
		OriginalURL:      p.OriginalURL,
		GeneratedSummary: p.GeneratedSummary,
		Embedding:        p.Embedding,
	}
}

// SearchResult is the read-side shape returned to callers. It is a strict
// subset of SearchDocument; embeddings never leave the search core.
type SearchResult struct {
	PostID           int64     `json:"postId"`
	SubmittedAt      time.Time `json:"submittedAt"`
	OriginalURL      string    `json:"originalUrl"`
	TextContent      string    `json:"textContent"`
	Title            string    `json:"title"`
	GeneratedSummary string    `json:"generatedSummary"`
}
