package driving

import (
	"context"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

// IngestionService runs the parse → chunk → embed → store pipeline
type IngestionService interface {
	// Process chunks a document once. A document already chunked is returned unchanged.
	// Pipeline failures are recorded on the document and wrap domain.ErrChunkingFailed.
	Process(ctx context.Context, documentID string) (*domain.Document, error)

	// Retry re-runs the pipeline for a document in error state
	Retry(ctx context.Context, documentID string) (*domain.Document, error)
}

// RetryScheduler periodically queues retries for failed documents
type RetryScheduler interface {
	// Start begins polling in the background
	Start(ctx context.Context) error

	// Stop stops polling and waits for the loop to exit
	Stop()

	// RunOnce performs a single poll and returns the number of tasks queued
	RunOnce(ctx context.Context) (int, error)
}
