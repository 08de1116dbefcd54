package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

// scriptedEngine returns canned responses per KNN breadth.
type scriptedEngine struct {
	byK        map[int][]domain.SearchResult
	errByK     map[int]error
	scanHits   []domain.SearchResult
	scanErr    error
	calledKs   []int
	lastSince  time.Duration
	scanCalled bool
}

func (s *scriptedEngine) EnsureIndex(context.Context) error { return nil }

func (s *scriptedEngine) IndexDocument(context.Context, domain.SearchDocument) error { return nil }

func (s *scriptedEngine) SearchByKeyword(context.Context, string, int64) ([]domain.SearchResult, error) {
	return nil, nil
}

func (s *scriptedEngine) SearchByVector(_ context.Context, q VectorQuery) ([]domain.SearchResult, error) {
	s.calledKs = append(s.calledKs, q.K)
	s.lastSince = q.Since
	if err := s.errByK[q.K]; err != nil {
		return nil, err
	}
	return s.byK[q.K], nil
}

func (s *scriptedEngine) SearchAll(context.Context, int64, int, []int64) ([]domain.SearchResult, error) {
	s.scanCalled = true
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.scanHits, nil
}

func nResults(n int) []domain.SearchResult {
	out := make([]domain.SearchResult, n)
	for i := range out {
		out[i] = domain.SearchResult{PostID: int64(i + 1)}
	}
	return out
}

func newTestCascade(engine Engine) *Cascade {
	return NewCascade(engine, DefaultStrategies(), time.Second, zap.NewNop())
}

func TestCascadeStopsAtFirstSufficientStrategy(t *testing.T) {
	engine := &scriptedEngine{byK: map[int][]domain.SearchResult{
		50:  nResults(5),
		100: nResults(5),
	}}

	got := newTestCascade(engine).Run(context.Background(), []float32{1}, 1, 5, nil)
	if len(got) != 5 {
		t.Fatalf("got %d results, want 5", len(got))
	}
	if len(engine.calledKs) != 1 || engine.calledKs[0] != 50 {
		t.Fatalf("called breadths %v, want only [50]", engine.calledKs)
	}
	if engine.scanCalled {
		t.Fatal("fallback ran despite a sufficient early strategy")
	}
}

func TestCascadeWidensOnInsufficientResults(t *testing.T) {
	engine := &scriptedEngine{byK: map[int][]domain.SearchResult{
		50:  nResults(3),
		100: nResults(5),
	}}

	got := newTestCascade(engine).Run(context.Background(), []float32{1}, 1, 5, nil)
	if len(got) != 5 {
		t.Fatalf("got %d results, want 5", len(got))
	}
	if len(engine.calledKs) != 2 || engine.calledKs[0] != 50 || engine.calledKs[1] != 100 {
		t.Fatalf("called breadths %v, want [50 100]", engine.calledKs)
	}
}

func TestCascadeSkipsFailingStrategy(t *testing.T) {
	engine := &scriptedEngine{
		errByK: map[int]error{50: errors.New("timeout")},
		byK:    map[int][]domain.SearchResult{100: nResults(5)},
	}

	got := newTestCascade(engine).Run(context.Background(), []float32{1}, 1, 5, nil)
	if len(got) != 5 {
		t.Fatalf("got %d results, want 5 from the next strategy", len(got))
	}
	if len(engine.calledKs) != 2 {
		t.Fatalf("called breadths %v, want the error skipped", engine.calledKs)
	}
}

func TestCascadeFallbackReturnsUnconditionally(t *testing.T) {
	// every vector strategy undershoots; the scan returns even fewer
	engine := &scriptedEngine{
		byK: map[int][]domain.SearchResult{
			50: nResults(1), 100: nResults(1), 200: nResults(1), 20: nResults(1),
		},
		scanHits: nResults(2),
	}

	got := newTestCascade(engine).Run(context.Background(), []float32{1}, 1, 5, nil)
	if len(got) != 2 {
		t.Fatalf("got %d results, want the fallback's 2", len(got))
	}
	if !engine.scanCalled {
		t.Fatal("fallback never ran")
	}
}

func TestCascadeRecencyStrategyPassesWindow(t *testing.T) {
	engine := &scriptedEngine{
		byK: map[int][]domain.SearchResult{20: nResults(5)},
	}

	newTestCascade(engine).Run(context.Background(), []float32{1}, 1, 5, nil)

	// the k=20 call is the recency strategy
	if engine.lastSince != 7*24*time.Hour {
		t.Fatalf("recency window = %v, want 7 days", engine.lastSince)
	}
}

func TestCascadeEmptyWhenEverythingFails(t *testing.T) {
	boom := errors.New("backend down")
	engine := &scriptedEngine{
		errByK:  map[int]error{50: boom, 100: boom, 200: boom, 20: boom},
		scanErr: boom,
	}

	got := newTestCascade(engine).Run(context.Background(), []float32{1}, 1, 5, nil)
	if got == nil {
		t.Fatal("want an empty slice, not nil")
	}
	if len(got) != 0 {
		t.Fatalf("got %d results, want 0", len(got))
	}
}
