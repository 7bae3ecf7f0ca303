package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL.
// Embeddings live in a pgvector column next to the chunk text.
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

const chunkColumns = `c.id, c.document_id, c.chunk_index, c.content, c.token_count,
	c.title, c.summary, c.keywords, c.embedding, c.created_at`

// SaveBatch replaces the chunks of every document in the batch inside one transaction
func (s *ChunkStore) SaveBatch(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var documentIDs []string
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		if !seen[chunk.DocumentID] {
			seen[chunk.DocumentID] = true
			documentIDs = append(documentIDs, chunk.DocumentID)
		}
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE document_id = ANY($1)`, pq.Array(documentIDs),
		); err != nil {
			return fmt.Errorf("delete previous chunks: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (
				id, document_id, chunk_index, content, token_count,
				title, summary, keywords, embedding, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, chunk := range chunks {
			keywords := chunk.Keywords
			if keywords == nil {
				keywords = []string{}
			}
			_, err := stmt.ExecContext(ctx,
				chunk.ID,
				chunk.DocumentID,
				chunk.ChunkIndex,
				chunk.Content,
				chunk.TokenCount,
				chunk.Title,
				chunk.Summary,
				pq.Array(keywords),
				embeddingValue(chunk.Embedding),
				chunk.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d of %s: %w", chunk.ChunkIndex, chunk.DocumentID, err)
			}
		}
		return nil
	})
}

// GetByDocument retrieves all chunks for a document ordered by chunk index
func (s *ChunkStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks c WHERE c.document_id = $1 ORDER BY c.chunk_index`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// CountByDocument returns the number of chunks stored for a document
func (s *ChunkStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// Candidates returns embedded chunks whose documents pass the access filter
func (s *ChunkStore) Candidates(ctx context.Context, filter domain.AccessFilter) ([]*domain.Chunk, error) {
	query, args := buildCandidatesQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// Nearest returns the topN embedded chunks closest to vector by cosine distance,
// ranked by pgvector. Chunks whose embedding has another dimension are skipped.
func (s *ChunkStore) Nearest(ctx context.Context, filter domain.AccessFilter, vector []float32, topN int) ([]domain.ScoredChunk, error) {
	if len(vector) == 0 {
		return []domain.ScoredChunk{}, nil
	}
	query, args := buildNearestQuery(filter, vector, topN)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nearest chunks: %w", err)
	}
	defer rows.Close()

	results := []domain.ScoredChunk{}
	for rows.Next() {
		var distance float64
		chunk, err := scanChunk(rows, &distance)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.ScoredChunk{Chunk: chunk, Distance: distance})
	}
	return results, rows.Err()
}

// DeleteByDocument deletes all chunks for a document
func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// buildCandidatesQuery mirrors domain.AccessFilter.Allows in SQL
func buildCandidatesQuery(filter domain.AccessFilter) (string, []any) {
	conditions, args := accessConditions(filter)
	query := `SELECT ` + chunkColumns + `
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY c.document_id, c.chunk_index`
	return query, args
}

// buildNearestQuery ranks the filtered chunks with the <=> cosine operator.
// Ties break on document ID then chunk index.
func buildNearestQuery(filter domain.AccessFilter, vector []float32, topN int) (string, []any) {
	if topN <= 0 {
		topN = domain.DefaultTopN
	}
	conditions, args := accessConditions(filter)

	args = append(args, len(vector))
	conditions = append(conditions, fmt.Sprintf("vector_dims(c.embedding) = $%d", len(args)))
	args = append(args, pgvector.NewVector(vector))
	vectorArg := len(args)
	args = append(args, topN)

	query := `SELECT ` + chunkColumns + fmt.Sprintf(`, c.embedding <=> $%d AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE `, vectorArg) + strings.Join(conditions, " AND ") + fmt.Sprintf(`
		ORDER BY distance, c.document_id, c.chunk_index
		LIMIT $%d`, len(args))
	return query, args
}

func accessConditions(filter domain.AccessFilter) ([]string, []any) {
	conditions := []string{"c.embedding IS NOT NULL"}
	var args []any

	if !filter.AllDocuments {
		if filter.Owner != "" {
			args = append(args, filter.Owner)
			conditions = append(conditions, fmt.Sprintf("(d.is_public = TRUE OR d.owner = $%d)", len(args)))
		} else {
			conditions = append(conditions, "d.is_public = TRUE")
		}
	}
	if len(filter.DocumentSlugs) > 0 {
		args = append(args, pq.Array(filter.DocumentSlugs))
		conditions = append(conditions, fmt.Sprintf("d.slug = ANY($%d)", len(args)))
	}
	switch filter.Visibility {
	case domain.VisibilityPublic:
		conditions = append(conditions, "d.is_public = TRUE")
	case domain.VisibilityPrivate:
		conditions = append(conditions, "d.is_public = FALSE")
	}
	return conditions, args
}

// embeddingValue maps a missing embedding to SQL NULL
func embeddingValue(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func scanChunks(rows *sql.Rows) ([]*domain.Chunk, error) {
	chunks := []*domain.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// scanChunk reads chunkColumns followed by any extra selected columns
func scanChunk(rows *sql.Rows, extra ...any) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var keywords pq.StringArray
	var embedding sql.Null[pgvector.Vector]
	dest := []any{
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.ChunkIndex,
		&chunk.Content,
		&chunk.TokenCount,
		&chunk.Title,
		&chunk.Summary,
		&keywords,
		&embedding,
		&chunk.CreatedAt,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	if len(keywords) > 0 {
		chunk.Keywords = []string(keywords)
	}
	if embedding.Valid {
		chunk.Embedding = embedding.V.Slice()
	}
	return &chunk, nil
}
