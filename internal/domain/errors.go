package domain

import "errors"

var (
	// ErrFeedNotFound signals a missing feed.
	ErrFeedNotFound = errors.New("feed not found")
	// ErrPostNotFound signals a missing post.
	ErrPostNotFound = errors.New("post not found")
	// ErrUserNotFound signals a missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyExists signals a duplicate resource (username, feed slug).
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnauthorized signals a missing or invalid API token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals an operation on a feed the user is not a member of.
	ErrForbidden = errors.New("forbidden")
	// ErrBackendUnavailable signals a search backend connection failure.
	// Recovered locally by the cascade or orchestrator, never surfaced.
	ErrBackendUnavailable = errors.New("search backend unavailable")
	// ErrEmbeddingUnavailable signals a provider failure or missing vector.
	// Degrades to the cold-start path, not an error to the caller.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrVectorDimMismatch signals an embedding of the wrong dimension at indexing time.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)
