package instruction

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/vantigo/vantigo/internal/log"
)

// stubEmbedder implements embedding.Embedder.
type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

// mockSearcher returns canned matches, already ordered by similarity.
type mockSearcher struct {
	matches []Match
	err     error
	gotK    int
}

func (m *mockSearcher) SearchSimilar(_ context.Context, _ []float32, k int) ([]Match, error) {
	m.gotK = k
	if m.err != nil {
		return nil, m.err
	}
	return m.matches, nil
}

func match(title string, sim float32) Match {
	return Match{
		Instruction: Instruction{ID: uuid.New(), Title: title, Content: title, IsActive: true},
		Similarity:  sim,
	}
}

func TestFindRelevantFiltersAndTruncates(t *testing.T) {
	searcher := &mockSearcher{matches: []Match{
		match("a", 0.95),
		match("b", 0.85),
		match("c", 0.7),
		match("d", 0.55),
	}}
	m := NewMatcher(&stubEmbedder{vec: []float32{1}}, searcher, log.NewNop())

	got, err := m.FindRelevant(context.Background(), "pricing", 2, 0.6)
	if err != nil {
		t.Fatalf("FindRelevant() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2 (k cap)", len(got))
	}
	for _, mt := range got {
		if mt.Similarity < 0.6 {
			t.Errorf("match %q below threshold: %v", mt.Instruction.Title, mt.Similarity)
		}
	}
	if got[0].Instruction.Title != "a" || got[1].Instruction.Title != "b" {
		t.Errorf("order not preserved: %q, %q", got[0].Instruction.Title, got[1].Instruction.Title)
	}
}

func TestFindRelevantSingleMatchScenario(t *testing.T) {
	searcher := &mockSearcher{matches: []Match{match("Job Pricing Guide", 0.82)}}
	m := NewMatcher(&stubEmbedder{vec: []float32{1}}, searcher, log.NewNop())

	got, err := m.FindRelevant(context.Background(), "how do I price a job", 5, 0.6)
	if err != nil {
		t.Fatalf("FindRelevant() error = %v", err)
	}
	if len(got) != 1 || got[0].Instruction.Title != "Job Pricing Guide" {
		t.Fatalf("got %v, want exactly Job Pricing Guide", got)
	}
}

func TestFindRelevantEmbeddingFailureDegrades(t *testing.T) {
	searcher := &mockSearcher{matches: []Match{match("a", 0.9)}}
	m := NewMatcher(&stubEmbedder{err: errors.New("upstream down")}, searcher, log.NewNop())

	got, err := m.FindRelevant(context.Background(), "query", 5, 0.5)
	if err != nil {
		t.Fatalf("embedding failure must not error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result on embedding failure, got %d", len(got))
	}
}

func TestFindRelevantSearchFailurePropagates(t *testing.T) {
	searcher := &mockSearcher{err: errors.New("db down")}
	m := NewMatcher(&stubEmbedder{vec: []float32{1}}, searcher, log.NewNop())

	if _, err := m.FindRelevant(context.Background(), "query", 5, 0.5); err == nil {
		t.Fatal("expected error from search failure")
	}
}

func TestFindRelevantEmptyQuerySkipsUpstream(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1}}
	m := NewMatcher(emb, &mockSearcher{}, log.NewNop())

	got, err := m.FindRelevant(context.Background(), "   ", 5, 0.5)
	if err != nil {
		t.Fatalf("FindRelevant() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result for blank query, got %v", got)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for blank query, want 0", emb.calls)
	}
}

func TestFindRelevantInvalidK(t *testing.T) {
	m := NewMatcher(&stubEmbedder{vec: []float32{1}}, &mockSearcher{}, log.NewNop())
	if _, err := m.FindRelevant(context.Background(), "q", 0, 0.5); err == nil {
		t.Fatal("expected error for k=0")
	}
}
