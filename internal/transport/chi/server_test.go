package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/usecase/recommend"
)

type fakeUsers struct {
	created *domain.User
	authErr error
}

func (f *fakeUsers) Create(_ context.Context, username, _, fullname string) (*domain.User, error) {
	f.created = &domain.User{UserID: 1, Username: username, Fullname: fullname, APIToken: "tok"}
	return f.created, nil
}

func (f *fakeUsers) Authenticate(context.Context, string, string) (*domain.User, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &domain.User{UserID: 1, APIToken: "tok"}, nil
}

type fakeFeeds struct {
	feeds map[string]*domain.Feed
}

func (f *fakeFeeds) Create(_ context.Context, title, slug string, createdBy int64) (*domain.Feed, error) {
	return &domain.Feed{FeedID: 1, Title: title, Slug: slug, CreatedBy: createdBy}, nil
}

func (f *fakeFeeds) GetBySlug(_ context.Context, slug string) (*domain.Feed, error) {
	feed, ok := f.feeds[slug]
	if !ok {
		return nil, domain.ErrFeedNotFound
	}
	return feed, nil
}

func (f *fakeFeeds) AddMember(context.Context, int64, int64) error { return nil }

func (f *fakeFeeds) ListByUser(context.Context, int64) ([]domain.Feed, error) { return nil, nil }

type fakeRecommender struct {
	page        *recommend.Page
	lastLimit   int
	lastExclude []int64
}

func (f *fakeRecommender) FeedPage(
	_ context.Context, _ *domain.User, _ *domain.Feed, limit int, excludeIDs []int64,
) (*recommend.Page, error) {
	f.lastLimit = limit
	f.lastExclude = excludeIDs
	return f.page, nil
}

type fakeSearcher struct {
	results []domain.SearchResult
}

func (f *fakeSearcher) SearchByKeyword(context.Context, string, int64) ([]domain.SearchResult, error) {
	return f.results, nil
}

type fakeInteractions struct {
	likes, views []int64
	err          error
}

func (f *fakeInteractions) Like(_ context.Context, _, postID int64) error {
	if f.err != nil {
		return f.err
	}
	f.likes = append(f.likes, postID)
	return nil
}

func (f *fakeInteractions) View(_ context.Context, _, postID int64) error {
	if f.err != nil {
		return f.err
	}
	f.views = append(f.views, postID)
	return nil
}

type fakeIngestor struct {
	submitted []string
}

func (f *fakeIngestor) Submit(rawURL string, _, _ int64) error {
	f.submitted = append(f.submitted, rawURL)
	return nil
}

type fixture struct {
	router       *chi.Mux
	feeds        *fakeFeeds
	recommender  *fakeRecommender
	interactions *fakeInteractions
	ingestor     *fakeIngestor
}

func newFixture() *fixture {
	feeds := &fakeFeeds{feeds: map[string]*domain.Feed{
		"go-news": {FeedID: 7, Title: "Go News", Slug: "go-news", MemberUserIDs: []int64{1}},
	}}
	recommender := &fakeRecommender{page: &recommend.Page{
		Posts: []domain.SearchResult{},
		Liked: map[int64]bool{},
	}}
	interactions := &fakeInteractions{}
	ingestor := &fakeIngestor{}

	server := NewServer(
		&fakeUsers{}, feeds, recommender, &fakeSearcher{}, interactions, ingestor,
		nil, zap.NewNop(),
	)

	router := chi.NewRouter()
	server.Register(router)

	return &fixture{
		router:       router,
		feeds:        feeds,
		recommender:  recommender,
		interactions: interactions,
		ingestor:     ingestor,
	}
}

// doAs issues a request with an authenticated user already in context,
// standing in for the auth middleware.
func (f *fixture) doAs(user *domain.User, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != nil {
		req = req.WithContext(ContextWithUser(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func member() *domain.User { return &domain.User{UserID: 1, Username: "alice"} }

func TestRegisterUser(t *testing.T) {
	f := newFixture()

	rr := f.doAs(nil, "POST", "/api/users", `{"username":"alice","password":"pw","fullname":"Alice"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body)
	}

	var resp userResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.APIToken == "" {
		t.Fatal("expected api token in response")
	}

	rr = f.doAs(nil, "POST", "/api/users", `{"username":"","password":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty credentials: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRecommendationsHasMore(t *testing.T) {
	f := newFixture()

	f.recommender.page.Posts = []domain.SearchResult{{PostID: 1}, {PostID: 2}}
	rr := f.doAs(member(), "GET", "/api/feeds/go-news/recommendations?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body)
	}

	var resp recommendationsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.HasMore {
		t.Fatal("full page: hasMore = false, want true")
	}

	// short page means the feed is exhausted
	f.recommender.page.Posts = []domain.SearchResult{{PostID: 1}}
	rr = f.doAs(member(), "GET", "/api/feeds/go-news/recommendations?limit=2", "")
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HasMore {
		t.Fatal("short page: hasMore = true, want false")
	}
}

func TestRecommendationsExcludeParsing(t *testing.T) {
	f := newFixture()

	rr := f.doAs(member(), "GET", "/api/feeds/go-news/recommendations?exclude=3,%205,8", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body)
	}
	if len(f.recommender.lastExclude) != 3 || f.recommender.lastExclude[1] != 5 {
		t.Fatalf("excludeIDs = %v, want [3 5 8]", f.recommender.lastExclude)
	}
	if f.recommender.lastLimit != defaultPageLimit {
		t.Fatalf("limit = %d, want default %d", f.recommender.lastLimit, defaultPageLimit)
	}

	rr = f.doAs(member(), "GET", "/api/feeds/go-news/recommendations?exclude=3,x", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad exclude: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRecommendationsLikedMarking(t *testing.T) {
	f := newFixture()
	f.recommender.page.Posts = []domain.SearchResult{{PostID: 1}, {PostID: 2}}
	f.recommender.page.Liked = map[int64]bool{2: true, 99: true}

	rr := f.doAs(member(), "GET", "/api/feeds/go-news/recommendations", "")
	var resp recommendationsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// only liked posts that appear on the page are reported
	if len(resp.LikedPostIDs) != 1 || resp.LikedPostIDs[0] != 2 {
		t.Fatalf("likedPostIds = %v, want [2]", resp.LikedPostIDs)
	}
}

func TestUnknownFeed404(t *testing.T) {
	f := newFixture()

	rr := f.doAs(member(), "GET", "/api/feeds/missing/recommendations", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusNotFound)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != "feed_not_found" {
		t.Fatalf("code = %q, want feed_not_found", errResp.Code)
	}
}

func TestSubmitPostRequiresMembership(t *testing.T) {
	f := newFixture()

	outsider := &domain.User{UserID: 99}
	rr := f.doAs(outsider, "POST", "/api/feeds/go-news/posts", `{"url":"https://example.com/a"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-member: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if len(f.ingestor.submitted) != 0 {
		t.Fatal("nothing should be scheduled for a non-member")
	}

	rr = f.doAs(member(), "POST", "/api/feeds/go-news/posts", `{"url":"https://example.com/a"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("member: got %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body)
	}
	if len(f.ingestor.submitted) != 1 {
		t.Fatalf("submitted = %v, want one url", f.ingestor.submitted)
	}
}

func TestInteractionEndpoints(t *testing.T) {
	f := newFixture()

	rr := f.doAs(member(), "POST", "/api/posts/5/like", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("like: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	rr = f.doAs(member(), "POST", "/api/posts/6/view", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("view: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(f.interactions.likes) != 1 || f.interactions.likes[0] != 5 {
		t.Fatalf("likes = %v, want [5]", f.interactions.likes)
	}
	if len(f.interactions.views) != 1 || f.interactions.views[0] != 6 {
		t.Fatalf("views = %v, want [6]", f.interactions.views)
	}

	rr = f.doAs(member(), "POST", "/api/posts/abc/like", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad post id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	f.interactions.err = domain.ErrPostNotFound
	rr = f.doAs(member(), "POST", "/api/posts/5/like", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown post: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSearchFeedRequiresQuery(t *testing.T) {
	f := newFixture()

	rr := f.doAs(member(), "GET", "/api/feeds/go-news/search", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing q: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = f.doAs(member(), "GET", "/api/feeds/go-news/search?q=golang", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body)
	}
}

func TestParseLimit(t *testing.T) {
	if _, err := parseLimit("0"); err == nil {
		t.Error("limit 0 accepted")
	}
	if _, err := parseLimit("101"); err == nil {
		t.Error("limit above max accepted")
	}
	if got, err := parseLimit("50"); err != nil || got != 50 {
		t.Errorf("parseLimit(50) = %d, %v", got, err)
	}
	if got, err := parseLimit(""); err != nil || got != defaultPageLimit {
		t.Errorf("parseLimit(empty) = %d, %v", got, err)
	}
}
