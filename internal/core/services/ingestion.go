package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/smartchunk/internal/chunking"
	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driving"
)

// Ensure ingestionService implements IngestionService
var _ driving.IngestionService = (*ingestionService)(nil)

// Defaults for the ingestion service
const (
	DefaultMaxRetries = 3
	DefaultLockTTL    = 10 * time.Minute
)

// IngestionConfig holds the collaborators of the ingestion pipeline.
type IngestionConfig struct {
	Documents driven.DocumentStore
	Chunks    driven.ChunkStore
	Parsers   driven.ParserRegistry
	Chunker   *chunking.Chunker
	Assembler *chunking.Assembler
	Lock      driven.DistributedLock
	Logger    *slog.Logger

	// MaxRetries bounds the explicit retry path (default 3)
	MaxRetries int
	// LockTTL is how long a document lock is held before it expires (default 10m)
	LockTTL time.Duration
}

// ingestionService runs parse → chunk → embed → store for one document at a time
type ingestionService struct {
	documents  driven.DocumentStore
	chunks     driven.ChunkStore
	parsers    driven.ParserRegistry
	chunker    *chunking.Chunker
	assembler  *chunking.Assembler
	lock       driven.DistributedLock
	logger     *slog.Logger
	maxRetries int
	lockTTL    time.Duration
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(cfg IngestionConfig) driving.IngestionService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	return &ingestionService{
		documents:  cfg.Documents,
		chunks:     cfg.Chunks,
		parsers:    cfg.Parsers,
		chunker:    cfg.Chunker,
		assembler:  cfg.Assembler,
		lock:       cfg.Lock,
		logger:     cfg.Logger,
		maxRetries: cfg.MaxRetries,
		lockTTL:    cfg.LockTTL,
	}
}

// Process chunks a pending document. A document already chunked is returned
// unchanged; a failed one only goes back through Retry.
func (s *ingestionService) Process(ctx context.Context, documentID string) (*domain.Document, error) {
	ctx, release, err := s.acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.ChunkingDone {
		s.logger.Debug("document already chunked", "document_id", doc.ID)
		return doc, nil
	}
	switch doc.ChunkingStatus {
	case domain.ChunkingStatusPending, domain.ChunkingStatusProcessing:
	default:
		return nil, fmt.Errorf("%w: %s is %s, use retry", domain.ErrNotRetryable, doc.ID, doc.ChunkingStatus)
	}
	return s.run(ctx, doc)
}

// Retry re-runs the pipeline for a document in error state.
func (s *ingestionService) Retry(ctx context.Context, documentID string) (*domain.Document, error) {
	ctx, release, err := s.acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.ChunkingStatus != domain.ChunkingStatusError || doc.ChunkingDone {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrNotRetryable, doc.ID, doc.ChunkingStatus)
	}
	if doc.RetryCount >= s.maxRetries {
		return nil, fmt.Errorf("%w: %s failed %d times", domain.ErrRetryLimitReached, doc.ID, doc.RetryCount+1)
	}

	doc.ResetForRetry()
	if err := s.documents.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.logger.Info("retrying document", "document_id", doc.ID, "retry_count", doc.RetryCount)

	return s.run(ctx, doc)
}

// acquire takes the per-document lock and keeps it alive until release is
// called. The returned context is cancelled with errLockLost if an extension
// fails. Without a configured lock it is a no-op.
func (s *ingestionService) acquire(ctx context.Context, documentID string) (context.Context, func(), error) {
	if s.lock == nil {
		return ctx, func() {}, nil
	}
	name := driven.DocumentLockName(documentID)
	acquired, err := s.lock.Acquire(ctx, name, s.lockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire document lock: %w", err)
	}
	if !acquired {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrDocumentLocked, documentID)
	}

	passCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go s.heartbeat(passCtx, cancel, name, done)

	return passCtx, func() {
		cancel(nil)
		<-done
		if err := s.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			s.logger.Warn("failed to release document lock", "document_id", documentID, "error", err)
		}
	}, nil
}

// errLockLost cancels a pass whose document lock could not be extended
var errLockLost = fmt.Errorf("%w: lock lost", domain.ErrDocumentLocked)

// heartbeat extends the lock every third of its TTL until ctx ends.
func (s *ingestionService) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, name string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(s.lockTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.lock.Extend(ctx, name, s.lockTTL); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("failed to extend document lock", "lock", name, "error", err)
				cancel(fmt.Errorf("%w: %w", errLockLost, err))
				return
			}
		}
	}
}

// run executes the pipeline on a loaded document and records the outcome.
func (s *ingestionService) run(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	start := time.Now()

	doc.MarkProcessing()
	if err := s.documents.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	text, chunkCount, err := s.pipeline(ctx, doc)
	if cause := context.Cause(ctx); errors.Is(cause, errLockLost) {
		// Another pass may own the document now; leave its state alone.
		return nil, cause
	}
	if err != nil {
		return s.fail(ctx, doc, err)
	}

	doc.MarkDone(text)
	if err := s.documents.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	s.logger.Info("document chunked",
		"document_id", doc.ID,
		"chunks", chunkCount,
		"duration", time.Since(start),
	)
	return doc, nil
}

// pipeline parses, chunks, embeds and persists. Chunks are written in one
// batch only after every embedding succeeded.
func (s *ingestionService) pipeline(ctx context.Context, doc *domain.Document) (string, int, error) {
	text, err := s.parsers.Parse(ctx, doc.File)
	if err != nil {
		return "", 0, err
	}

	raw := s.chunker.Chunk(text)
	chunks, err := s.assembler.Assemble(ctx, doc.ID, raw)
	if err != nil {
		return "", 0, err
	}

	if ctx.Err() != nil {
		return "", 0, context.Cause(ctx)
	}
	if len(chunks) == 0 {
		if err := s.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
			return "", 0, fmt.Errorf("clear chunks: %w", err)
		}
		return text, 0, nil
	}
	if err := s.chunks.SaveBatch(ctx, chunks); err != nil {
		return "", 0, fmt.Errorf("save chunks: %w", err)
	}
	return text, len(chunks), nil
}

// fail records err on the document and returns it wrapped in ErrChunkingFailed.
func (s *ingestionService) fail(ctx context.Context, doc *domain.Document, cause error) (*domain.Document, error) {
	doc.MarkFailed(cause.Error())

	// Record the failure even if the caller's context is gone.
	if err := s.documents.Save(context.WithoutCancel(ctx), doc); err != nil {
		s.logger.Error("failed to record chunking failure",
			"document_id", doc.ID,
			"error", err,
		)
		return doc, fmt.Errorf("%w: %w", domain.ErrChunkingFailed, errors.Join(cause, err))
	}

	s.logger.Warn("document chunking failed",
		"document_id", doc.ID,
		"retry_count", doc.RetryCount,
		"error", cause,
	)
	return doc, fmt.Errorf("%w: %w", domain.ErrChunkingFailed, cause)
}
