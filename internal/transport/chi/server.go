// Package chi is the HTTP transport: routing, request decoding, and the
// domain-error-to-status mapping.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/usecase/recommend"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// UserService is the account surface the transport needs.
type UserService interface {
	Create(ctx context.Context, username, password, fullname string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

// FeedService manages feeds and memberships.
type FeedService interface {
	Create(ctx context.Context, title, slug string, createdBy int64) (*domain.Feed, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Feed, error)
	AddMember(ctx context.Context, feedID, userID int64) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Feed, error)
}

// Recommender produces recommendation pages.
type Recommender interface {
	FeedPage(ctx context.Context, user *domain.User, feed *domain.Feed, limit int, excludeIDs []int64) (*recommend.Page, error)
}

// Searcher runs keyword queries against the search engine.
type Searcher interface {
	SearchByKeyword(ctx context.Context, query string, feedID int64) ([]domain.SearchResult, error)
}

// InteractionService records likes and views.
type InteractionService interface {
	Like(ctx context.Context, userID, postID int64) error
	View(ctx context.Context, userID, postID int64) error
}

// Ingestor schedules URL ingestion.
type Ingestor interface {
	Submit(rawURL string, feedID, userID int64) error
}

// Pinger is a named dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	users         UserService
	feeds         FeedService
	recommender   Recommender
	searcher      Searcher
	interactions  InteractionService
	ingestor      Ingestor
	healthPingers map[string]Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server. healthPingers maps dependency names
// to their liveness checks.
func NewServer(
	users UserService,
	feeds FeedService,
	recommender Recommender,
	searcher Searcher,
	interactions InteractionService,
	ingestor Ingestor,
	healthPingers map[string]Pinger,
	logger *zap.Logger,
) *Server {
	s := &Server{
		users:         users,
		feeds:         feeds,
		recommender:   recommender,
		searcher:      searcher,
		interactions:  interactions,
		ingestor:      ingestor,
		healthPingers: healthPingers,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrFeedNotFound, http.StatusNotFound, "feed_not_found"),
		sentinelHandler(domain.ErrPostNotFound, http.StatusNotFound, "post_not_found"),
		sentinelHandler(domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, "already_exists"),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, "forbidden"),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, "vector_dim_mismatch"),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, "embedding_unavailable"),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusServiceUnavailable, "search_unavailable"),
	}
	return s
}

// Register mounts all routes on the router. The auth middleware must already
// be installed above it.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", s.RegisterUser)
		r.Post("/auth/token", s.IssueToken)

		r.Post("/feeds", s.CreateFeed)
		r.Get("/feeds/my", s.ListMyFeeds)
		r.Post("/feeds/{slug}/join", s.JoinFeed)
		r.Get("/feeds/{slug}/recommendations", s.Recommendations)
		r.Get("/feeds/{slug}/search", s.SearchFeed)
		r.Post("/feeds/{slug}/posts", s.SubmitPost)

		r.Post("/posts/{postID}/like", s.LikePost)
		r.Post("/posts/{postID}/view", s.ViewPost)
	})
}

type registerUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Fullname string `json:"fullname"`
}

type userResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	APIToken string `json:"apiToken"`
}

// RegisterUser handles POST /api/users.
func (s *Server) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "username and password are required")
		return
	}

	u, err := s.users.Create(r.Context(), req.Username, req.Password, req.Fullname)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		UserID:   u.UserID,
		Username: u.Username,
		Fullname: u.Fullname,
		APIToken: u.APIToken,
	})
}

type issueTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// IssueToken handles POST /api/auth/token.
func (s *Server) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	u, err := s.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"apiToken": u.APIToken})
}

type createFeedRequest struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

type feedResponse struct {
	FeedID    int64     `json:"feedId"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateFeed handles POST /api/feeds.
func (s *Server) CreateFeed(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req createFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Title == "" || req.Slug == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "title and slug are required")
		return
	}

	f, err := s.feeds.Create(r.Context(), req.Title, req.Slug, user.UserID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, feedToResponse(f))
}

// ListMyFeeds handles GET /api/feeds/my.
func (s *Server) ListMyFeeds(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	feeds, err := s.feeds.ListByUser(r.Context(), user.UserID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]feedResponse, len(feeds))
	for i := range feeds {
		items[i] = feedToResponse(&feeds[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": items})
}

// JoinFeed handles POST /api/feeds/{slug}/join.
func (s *Server) JoinFeed(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	f, err := s.feeds.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if err := s.feeds.AddMember(r.Context(), f.FeedID, user.UserID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recommendationsResponse struct {
	Posts        []domain.SearchResult `json:"posts"`
	HasMore      bool                  `json:"hasMore"`
	LikedPostIDs []int64               `json:"likedPostIds"`
}

// Recommendations handles GET /api/feeds/{slug}/recommendations.
func (s *Server) Recommendations(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	f, err := s.feeds.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	excludeIDs, err := parseIDList(r.URL.Query().Get("exclude"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "exclude must be a comma-separated id list")
		return
	}

	page, err := s.recommender.FeedPage(r.Context(), user, f, limit, excludeIDs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	liked := make([]int64, 0)
	for _, p := range page.Posts {
		if page.Liked[p.PostID] {
			liked = append(liked, p.PostID)
		}
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{
		Posts: page.Posts,
		// a full page suggests there is more; an exact-fit last page reads
		// as hasMore too, which costs the client one empty fetch
		HasMore:      len(page.Posts) == limit,
		LikedPostIDs: liked,
	})
}

// SearchFeed handles GET /api/feeds/{slug}/search.
func (s *Server) SearchFeed(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "q is required")
		return
	}

	f, err := s.feeds.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	results, err := s.searcher.SearchByKeyword(r.Context(), query, f.FeedID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"posts": results})
}

type submitPostRequest struct {
	URL string `json:"url"`
}

// SubmitPost handles POST /api/feeds/{slug}/posts. Scraping happens in the
// background; the response only acknowledges the submission.
func (s *Server) SubmitPost(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req submitPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	f, err := s.feeds.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if !f.HasMember(user.UserID) {
		s.handleDomainError(w, fmt.Errorf("user %d is not a member of feed %d: %w",
			user.UserID, f.FeedID, domain.ErrForbidden))
		return
	}

	if err := s.ingestor.Submit(req.URL, f.FeedID, user.UserID); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// LikePost handles POST /api/posts/{postID}/like.
func (s *Server) LikePost(w http.ResponseWriter, r *http.Request) {
	s.recordInteraction(w, r, s.interactions.Like)
}

// ViewPost handles POST /api/posts/{postID}/view.
func (s *Server) ViewPost(w http.ResponseWriter, r *http.Request) {
	s.recordInteraction(w, r, s.interactions.View)
}

func (s *Server) recordInteraction(
	w http.ResponseWriter, r *http.Request, record func(context.Context, int64, int64) error,
) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "postID must be an integer")
		return
	}

	if err := record(r.Context(), user.UserID, postID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.healthPingers))
	healthy := true
	for name, p := range s.healthPingers {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = "down"
			healthy = false
			s.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
		} else {
			checks[name] = "up"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func feedToResponse(f *domain.Feed) feedResponse {
	return feedResponse{
		FeedID:    f.FeedID,
		Title:     f.Title,
		Slug:      f.Slug,
		CreatedAt: f.CreatedAt,
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPageLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxPageLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxPageLimit)
	}
	return limit, nil
}

func parseIDList(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrFeedNotFound,
		domain.ErrPostNotFound,
		domain.ErrUserNotFound,
		domain.ErrAlreadyExists,
		domain.ErrUnauthorized,
		domain.ErrForbidden,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingUnavailable,
		domain.ErrBackendUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
