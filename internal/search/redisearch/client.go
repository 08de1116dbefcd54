// Package redisearch implements search.Engine on a RediSearch-capable
// Redis 8+ server via rueidis: BM25 keyword search, HNSW vector KNN, and a
// recency-ordered scan, all scoped per feed.
package redisearch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/scrapfeed/scrapfeed/internal/search"
)

// Compile-time check: Engine implements search.Engine.
var _ search.Engine = (*Engine)(nil)

// Config holds connection and index parameters.
type Config struct {
	Addrs           []string
	Username        string
	Password        string
	KeyPrefix       string // namespace for keys and the index name
	Dimension       int
	KeywordLimit    int
	HNSWM           int
	HNSWEFConstruct int
}

// Engine is a hybrid search backend: full-text and vector search in one index.
type Engine struct {
	client       rueidis.Client
	docPrefix    string
	indexName    string
	dim          int
	keywordLimit int
	hnswM        int
	hnswEF       int
}

// New connects to Redis and returns the engine. The index is not touched
// here; call EnsureIndex once at startup.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	keywordLimit := cfg.KeywordLimit
	if keywordLimit <= 0 {
		keywordLimit = 1000
	}

	return &Engine{
		client:       client,
		docPrefix:    cfg.KeyPrefix + "post:",
		indexName:    cfg.KeyPrefix + "posts:idx",
		dim:          cfg.Dimension,
		keywordLimit: keywordLimit,
		hnswM:        cfg.HNSWM,
		hnswEF:       cfg.HNSWEFConstruct,
	}, nil
}

// Ping checks connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	cmd := e.client.B().Ping().Build()
	if err := e.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (e *Engine) Close() {
	e.client.Close()
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (e *Engine) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := e.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (e *Engine) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return e.client.Do(ctx, cmd)
}

func (e *Engine) b() rueidis.Builder {
	return e.client.B()
}

// isRedisErr checks if err is a Redis server error containing substr.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return containsIgnoreCase(re.Error(), substr)
}

func containsIgnoreCase(s, substr string) bool {
	ls := len(s)
	lsub := len(substr)
	if lsub > ls {
		return false
	}
	for i := 0; i <= ls-lsub; i++ {
		match := true
		for j := 0; j < lsub; j++ {
			sc := s[i+j]
			tc := substr[j]
			if sc >= 'A' && sc <= 'Z' {
				sc += 'a' - 'A'
			}
			if tc >= 'A' && tc <= 'Z' {
				tc += 'a' - 'A'
			}
			if sc != tc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
