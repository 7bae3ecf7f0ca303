package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Default assembler settings
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// AssemblerConfig holds configuration for the Assembler.
type AssemblerConfig struct {
	// BatchSize is the number of chunk texts sent per embedding call
	BatchSize int
	// Concurrency bounds the embedding calls in flight
	Concurrency int
	Logger      *slog.Logger
}

// Assembler turns raw chunks into persistable chunk records by counting
// tokens and computing an embedding for each.
type Assembler struct {
	tokenizer   driven.Tokenizer
	embedder    driven.EmbeddingService
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(tokenizer driven.Tokenizer, embedder driven.EmbeddingService, cfg AssemblerConfig) *Assembler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assembler{
		tokenizer:   tokenizer,
		embedder:    embedder,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Assemble returns one chunk per raw chunk, in input order.
// Any embedding failure aborts the whole document: no records are returned.
func (a *Assembler) Assemble(ctx context.Context, documentID string, raw []domain.RawChunk) ([]*domain.Chunk, error) {
	if len(raw) == 0 {
		return []*domain.Chunk{}, nil
	}

	start := time.Now()
	embeddings := make([][]float32, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for lo := 0; lo < len(raw); lo += a.batchSize {
		hi := lo + a.batchSize
		if hi > len(raw) {
			hi = len(raw)
		}
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, rc := range raw[lo:hi] {
				texts = append(texts, rc.Content)
			}
			vectors, err := a.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("%w: got %d embeddings for %d chunks", domain.ErrEmbeddingFailed, len(vectors), len(texts))
			}
			for i, v := range vectors {
				if len(v) == 0 {
					return fmt.Errorf("%w: chunk %d", domain.ErrEmptyInput, lo+i)
				}
				embeddings[lo+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now()
	chunks := make([]*domain.Chunk, len(raw))
	for i, rc := range raw {
		chunks[i] = &domain.Chunk{
			ID:         domain.GenerateID(),
			DocumentID: documentID,
			ChunkIndex: rc.Index,
			Content:    rc.Content,
			TokenCount: a.tokenizer.Count(rc.Content),
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
	}

	a.logger.Debug("assembled chunks",
		"document_id", documentID,
		"chunks", len(chunks),
		"duration", time.Since(start),
	)
	return chunks, nil
}
