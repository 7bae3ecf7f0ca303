package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driving"
	"github.com/custodia-labs/smartchunk/internal/retrieval"
)

// Ensure searchService implements SearchService
var _ driving.SearchService = (*searchService)(nil)

// maxTopN caps how many chunks a single query may return
const maxTopN = 100

// searchService implements the SearchService interface
type searchService struct {
	chunkStore  driven.ChunkStore
	retriever   *retrieval.Retriever
	defaultTopN int
	logger      *slog.Logger
}

// SearchServiceConfig holds configuration for the search service.
type SearchServiceConfig struct {
	Chunks    driven.ChunkStore
	Retriever *retrieval.Retriever
	// DefaultTopN applies when a query does not ask for a count (default 5)
	DefaultTopN int
	Logger      *slog.Logger
}

// NewSearchService creates a new SearchService
func NewSearchService(cfg SearchServiceConfig) driving.SearchService {
	if cfg.DefaultTopN <= 0 {
		cfg.DefaultTopN = domain.DefaultTopN
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &searchService{
		chunkStore:  cfg.Chunks,
		retriever:   cfg.Retriever,
		defaultTopN: cfg.DefaultTopN,
		logger:      cfg.Logger,
	}
}

// Search ranks the chunks visible to principal by similarity to query
func (s *searchService) Search(ctx context.Context, principal domain.Principal, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	start := time.Now()

	if opts.TopN <= 0 {
		opts.TopN = s.defaultTopN
	}
	if opts.TopN > maxTopN {
		opts.TopN = maxTopN
	}

	result := &domain.SearchResult{
		Query:   query,
		Results: []domain.ScoredChunk{},
	}
	if query == "" {
		result.Took = time.Since(start)
		return result, nil
	}

	vector, err := s.retriever.QueryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	if vector == nil {
		result.Took = time.Since(start)
		return result, nil
	}

	filter := domain.NewAccessFilter(principal, opts)
	ranked, err := s.chunkStore.Nearest(ctx, filter, vector, opts.TopN)
	if err != nil {
		return nil, fmt.Errorf("rank chunks: %w", err)
	}
	result.Results = ranked
	result.Took = time.Since(start)

	s.logger.Debug("search completed",
		"results", len(ranked),
		"duration", result.Took,
	)
	return result, nil
}
