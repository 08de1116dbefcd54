package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/domain"
	"github.com/scrapfeed/scrapfeed/internal/metrics"
	"github.com/scrapfeed/scrapfeed/internal/search"
)

// maxBodyBytes caps how much of a fetched page is read.
const maxBodyBytes = 4 << 20

// Summarizer condenses extracted text into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (string, error)
}

// Embedder produces a content embedding for indexing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PostStore persists ingested posts.
type PostStore interface {
	Create(ctx context.Context, p *domain.Post) error
}

// Options tunes the ingestion pipeline.
type Options struct {
	FetchTimeout    time.Duration
	TaskTimeout     time.Duration
	MaxContentChars int
}

// Service runs the scrape pipeline: fetch, extract, summarize, embed,
// persist, index. Submissions are fire-and-forget; the submitting request
// returns before any of it happens.
type Service struct {
	client     *http.Client
	summarizer Summarizer
	embedder   Embedder
	posts      PostStore
	engine     search.Engine
	opts       Options
	logger     *zap.Logger
}

// NewService creates the ingestion service.
func NewService(
	summarizer Summarizer,
	embedder Embedder,
	posts PostStore,
	engine search.Engine,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		client:     &http.Client{Timeout: opts.FetchTimeout},
		summarizer: summarizer,
		embedder:   embedder,
		posts:      posts,
		engine:     engine,
		opts:       opts,
		logger:     logger,
	}
}

// Submit validates the URL and schedules ingestion. The pipeline runs
// detached from the request context with its own deadline; failures are
// logged, never reported back to the submitter.
func (s *Service) Submit(rawURL string, feedID, userID int64) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be absolute http(s), got %q", rawURL)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.TaskTimeout)
		defer cancel()
		if err := s.Ingest(ctx, u.String(), feedID, userID); err != nil {
			s.logger.Error("ingestion failed",
				zap.String("url", u.String()),
				zap.Int64("feed_id", feedID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Ingest runs the pipeline synchronously. Summary and embedding failures
// degrade the post rather than abort it; fetch, extraction, and persistence
// failures are fatal. An indexing failure leaves the post persisted but
// unsearchable, which a later reindex can repair.
func (s *Service) Ingest(ctx context.Context, pageURL string, feedID, userID int64) error {
	extracted, err := s.fetch(ctx, pageURL)
	if err != nil {
		return err
	}

	summary, err := s.summarizer.Summarize(ctx, extracted.Title, extracted.TextContent)
	if err != nil {
		s.logger.Warn("summary generation failed, storing without summary",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		summary = ""
	}

	embedding, err := s.embedder.Embed(ctx, embeddingInput(extracted.Title, summary, extracted.TextContent))
	if err != nil {
		s.logger.Warn("embedding failed, post will be keyword-only",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		embedding = nil
	}

	post := &domain.Post{
		FeedID:           feedID,
		OwnerUserID:      userID,
		SubmittedAt:      time.Now().UTC(),
		OriginalURL:      pageURL,
		Title:            extracted.Title,
		TextContent:      extracted.TextContent,
		GeneratedSummary: summary,
		Embedding:        embedding,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return fmt.Errorf("persist post: %w", err)
	}

	if err := s.engine.IndexDocument(ctx, domain.SearchDocumentFromPost(post)); err != nil {
		metrics.IndexingErrorsTotal.Inc()
		s.logger.Error("indexing failed, post persisted but unsearchable",
			zap.Int64("post_id", post.PostID),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, pageURL string) (Extracted, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Extracted{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "scrapfeed/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return Extracted{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Extracted{}, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	return Extract(io.LimitReader(resp.Body, maxBodyBytes), s.opts.MaxContentChars)
}

// embeddingInput assembles the text fed to the embedding model. The summary
// front-loads the salient content when present.
func embeddingInput(title, summary, content string) string {
	if summary != "" {
		return title + "\n" + summary
	}
	return title + "\n" + content
}
