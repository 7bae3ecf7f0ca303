package driving

import (
	"context"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

// CreateDocumentInput describes a document to register for chunking
type CreateDocumentInput struct {
	// File is the local path of the uploaded file
	File        string
	Owner       string
	Name        string // defaults to the file stem
	Category    string
	Description string
	IsPublic    bool

	// ProcessInline skips queueing; the caller runs ingestion itself
	ProcessInline bool
}

// DocumentService manages document records
type DocumentService interface {
	// Create registers a document in pending state
	Create(ctx context.Context, input CreateDocumentInput) (*domain.Document, error)

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetBySlug retrieves a document by slug
	GetBySlug(ctx context.Context, slug string) (*domain.Document, error)

	// GetWithChunks retrieves a document with its chunks
	GetWithChunks(ctx context.Context, id string) (*domain.DocumentWithChunks, error)

	// List returns documents matching the filter
	List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error)
}
