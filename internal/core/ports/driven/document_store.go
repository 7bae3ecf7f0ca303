package driven

import (
	"context"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

// DocumentStore handles document persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetBySlug retrieves a document by its unique slug
	GetBySlug(ctx context.Context, slug string) (*domain.Document, error)

	// SlugExists reports whether a slug is already taken
	SlugExists(ctx context.Context, slug string) (bool, error)

	// List returns documents matching the filter, newest first
	List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error)

	// ListRetryable returns documents in error whose retry count is below maxRetries
	ListRetryable(ctx context.Context, maxRetries int) ([]*domain.Document, error)

	// Delete deletes a document and, by cascade, its chunks
	Delete(ctx context.Context, id string) error
}

// ChunkStore handles chunk persistence (PostgreSQL + pgvector)
type ChunkStore interface {
	// SaveBatch atomically replaces all chunks of the batch's documents.
	// Either every chunk is written or none is.
	SaveBatch(ctx context.Context, chunks []*domain.Chunk) error

	// GetByDocument retrieves all chunks for a document ordered by chunk index
	GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)

	// CountByDocument returns the number of chunks stored for a document
	CountByDocument(ctx context.Context, documentID string) (int, error)

	// Candidates returns embedded chunks whose documents pass the access filter
	Candidates(ctx context.Context, filter domain.AccessFilter) ([]*domain.Chunk, error)

	// Nearest returns up to topN embedded chunks passing the access filter,
	// ordered by ascending cosine distance to vector
	Nearest(ctx context.Context, filter domain.AccessFilter, vector []float32, topN int) ([]domain.ScoredChunk, error)

	// DeleteByDocument deletes all chunks for a document
	DeleteByDocument(ctx context.Context, documentID string) error
}
