package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Retriever ranks candidate chunks by cosine distance to a query.
type Retriever struct {
	embedder driven.EmbeddingService
	logger   *slog.Logger
}

// NewRetriever creates a retriever backed by an embedding service.
func NewRetriever(embedder driven.EmbeddingService, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		logger:   logger,
	}
}

// QueryVector embeds query for a nearest-neighbour lookup. An empty query, or
// one the model cannot embed, returns a nil vector and no error.
func (r *Retriever) QueryVector(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, nil
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if errors.Is(err, domain.ErrEmptyInput) || (err == nil && len(vector) == 0) {
		r.logger.Debug("query produced no embedding", "query_len", len(query))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

// TopSimilar embeds query and returns the topN closest candidates.
// An empty query, or one the model cannot embed, returns no results and no error.
// Candidates must already be access filtered.
func (r *Retriever) TopSimilar(ctx context.Context, candidates []*domain.Chunk, query string, topN int) ([]domain.ScoredChunk, error) {
	if query == "" || len(candidates) == 0 {
		return []domain.ScoredChunk{}, nil
	}
	vector, err := r.QueryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	if vector == nil {
		return []domain.ScoredChunk{}, nil
	}
	return Rank(candidates, vector, topN), nil
}

// Rank orders candidates by ascending cosine distance to vector and keeps topN.
// Ties break on document ID then chunk index. Candidates with no embedding or
// a different dimension are skipped. topN <= 0 means domain.DefaultTopN.
func Rank(candidates []*domain.Chunk, vector []float32, topN int) []domain.ScoredChunk {
	if topN <= 0 {
		topN = domain.DefaultTopN
	}

	scored := make([]domain.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || len(c.Embedding) == 0 || len(c.Embedding) != len(vector) {
			continue
		}
		scored = append(scored, domain.ScoredChunk{
			Chunk:    c,
			Distance: CosineDistance(vector, c.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

// CosineDistance returns 1 - cos(a, b), matching pgvector's <=> operator.
// A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
