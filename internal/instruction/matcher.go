package instruction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantigo/vantigo/internal/embedding"
)

// Searcher is the similarity-search dependency of the Matcher.
// *Store implements it; tests provide mocks.
type Searcher interface {
	SearchSimilar(ctx context.Context, vec []float32, k int) ([]Match, error)
}

// Matcher retrieves instructions relevant to a free-text query.
type Matcher struct {
	embedder embedding.Embedder
	searcher Searcher
	logger   *slog.Logger
}

// NewMatcher creates a Matcher. The embedder is typically a
// *embedding.CachedEmbedder so repeated queries skip the upstream call.
func NewMatcher(embedder embedding.Embedder, searcher Searcher, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		embedder: embedder,
		searcher: searcher,
		logger:   logger,
	}
}

// FindRelevant returns at most k instructions with similarity >= threshold,
// ordered by descending similarity.
//
// Failure semantics: an embedding-generation failure degrades to an empty
// result with a logged warning rather than failing the caller's request.
// A database search failure is a real error and is returned. An empty or
// whitespace-only query short-circuits to an empty result with no upstream
// call.
func (m *Matcher) FindRelevant(ctx context.Context, query string, k int, threshold float32) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("embedding generation failed, returning no instructions",
			"error", err, "query_length", len(query))
		return nil, nil
	}

	matches, err := m.searcher.SearchSimilar(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching instructions: %w", err)
	}

	// Candidates arrive ordered by descending similarity; cut at the
	// threshold and cap at k.
	out := make([]Match, 0, len(matches))
	for _, match := range matches {
		if match.Similarity < threshold {
			continue
		}
		out = append(out, match)
		if len(out) == k {
			break
		}
	}

	m.logger.Debug("matched instructions",
		"query_length", len(query), "candidates", len(matches), "matched", len(out))
	return out, nil
}
