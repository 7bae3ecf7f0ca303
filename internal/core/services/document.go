package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driving"
)

// Ensure documentService implements DocumentService
var _ driving.DocumentService = (*documentService)(nil)

// maxSlugAttempts bounds the -N suffix search for a free slug
const maxSlugAttempts = 1000

// DocumentServiceConfig holds configuration for the document service.
type DocumentServiceConfig struct {
	Documents driven.DocumentStore
	Chunks    driven.ChunkStore
	// TaskQueue is optional. When set, Create queues a process_document task.
	TaskQueue driven.TaskQueue
	Logger    *slog.Logger
}

// documentService implements the DocumentService interface
type documentService struct {
	documentStore driven.DocumentStore
	chunkStore    driven.ChunkStore
	taskQueue     driven.TaskQueue
	logger        *slog.Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(cfg DocumentServiceConfig) driving.DocumentService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &documentService{
		documentStore: cfg.Documents,
		chunkStore:    cfg.Chunks,
		taskQueue:     cfg.TaskQueue,
		logger:        cfg.Logger,
	}
}

// Create registers a document in pending state with a unique slug
func (s *documentService) Create(ctx context.Context, input driving.CreateDocumentInput) (*domain.Document, error) {
	if strings.TrimSpace(input.File) == "" {
		return nil, fmt.Errorf("%w: file is required", domain.ErrInvalidInput)
	}
	info, err := os.Stat(input.File)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, input.File)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = domain.NameFromPath(input.File)
	}
	slug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &domain.Document{
		ID:             domain.GenerateID(),
		Owner:          input.Owner,
		Name:           name,
		Slug:           slug,
		Category:       input.Category,
		Description:    input.Description,
		IsPublic:       input.IsPublic,
		File:           input.File,
		ChunkingStatus: domain.ChunkingStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.documentStore.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.logger.Info("document created", "document_id", doc.ID, "slug", doc.Slug)

	if s.taskQueue != nil && !input.ProcessInline {
		task := domain.NewProcessDocumentTask(doc.ID)
		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			return doc, fmt.Errorf("enqueue chunking task: %w", err)
		}
		s.logger.Debug("queued chunking task", "document_id", doc.ID, "task_id", task.ID)
	}
	return doc, nil
}

// uniqueSlug slugifies name and appends -1, -2, ... until the slug is free
func (s *documentService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := domain.Slugify(name)
	if base == "" {
		base = "document"
	}

	slug := base
	for i := 1; i <= maxSlugAttempts; i++ {
		exists, err := s.documentStore.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("%w: no free slug for %q", domain.ErrAlreadyExists, base)
}

// Get retrieves a document by ID
func (s *documentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.documentStore.Get(ctx, id)
}

// GetBySlug retrieves a document by slug
func (s *documentService) GetBySlug(ctx context.Context, slug string) (*domain.Document, error) {
	return s.documentStore.GetBySlug(ctx, slug)
}

// GetWithChunks retrieves a document with its chunks
func (s *documentService) GetWithChunks(ctx context.Context, id string) (*domain.DocumentWithChunks, error) {
	doc, err := s.documentStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunkStore.GetByDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	return &domain.DocumentWithChunks{
		Document: doc,
		Chunks:   chunks,
	}, nil
}

// List returns documents matching the filter
func (s *documentService) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidInput)
	}
	return s.documentStore.List(ctx, filter)
}
