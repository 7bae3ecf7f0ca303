package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = `id, owner, name, slug, category, description, is_public, file,
	extracted_text, chunking_status, chunking_done, last_error, retry_count, created_at, updated_at`

// Save creates or updates a document
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			is_public = EXCLUDED.is_public,
			file = EXCLUDED.file,
			extracted_text = EXCLUDED.extracted_text,
			chunking_status = EXCLUDED.chunking_status,
			chunking_done = EXCLUDED.chunking_done,
			last_error = EXCLUDED.last_error,
			retry_count = EXCLUDED.retry_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Owner,
		doc.Name,
		doc.Slug,
		doc.Category,
		doc.Description,
		doc.IsPublic,
		doc.File,
		doc.ExtractedText,
		string(doc.ChunkingStatus),
		doc.ChunkingDone,
		doc.LastError,
		doc.RetryCount,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetBySlug retrieves a document by its unique slug
func (s *DocumentStore) GetBySlug(ctx context.Context, slug string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE slug = $1`
	return s.getOne(ctx, query, slug)
}

// SlugExists reports whether a slug is already taken
func (s *DocumentStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug %q: %w", slug, err)
	}
	return exists, nil
}

// List returns documents matching the filter, newest first
func (s *DocumentStore) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error) {
	query, args := buildDocumentListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListRetryable returns documents in error whose retry count is below maxRetries
func (s *DocumentStore) ListRetryable(ctx context.Context, maxRetries int) ([]*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE chunking_status = $1 AND chunking_done = FALSE AND retry_count < $2
		ORDER BY updated_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(domain.ChunkingStatusError), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("list retryable documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// Delete deletes a document. Its chunks go with it through ON DELETE CASCADE.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *DocumentStore) getOne(ctx context.Context, query string, arg string) (*domain.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// buildDocumentListQuery turns a filter into a parameterised SELECT
func buildDocumentListQuery(filter domain.DocumentFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Owner != "" {
		add("owner = $%d", filter.Owner)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Slug != "" {
		add("slug = $%d", filter.Slug)
	}
	if filter.Status != "" {
		add("chunking_status = $%d", string(filter.Status))
	}
	switch filter.Visibility {
	case domain.VisibilityPublic:
		conditions = append(conditions, "is_public = TRUE")
	case domain.VisibilityPrivate:
		conditions = append(conditions, "is_public = FALSE")
	}

	var b strings.Builder
	b.WriteString("SELECT " + documentColumns + " FROM documents")
	if len(conditions) > 0 {
		b.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID,
		&doc.Owner,
		&doc.Name,
		&doc.Slug,
		&doc.Category,
		&doc.Description,
		&doc.IsPublic,
		&doc.File,
		&doc.ExtractedText,
		&status,
		&doc.ChunkingDone,
		&doc.LastError,
		&doc.RetryCount,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ChunkingStatus = domain.ChunkingStatus(status)
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
