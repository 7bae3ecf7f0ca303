package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

func TestHashLockName(t *testing.T) {
	a := hashLockName("document:doc-1")
	assert.Equal(t, a, hashLockName("document:doc-1"), "stable across calls")
	assert.NotEqual(t, a, hashLockName("document:doc-2"))
	assert.NotEqual(t, a, hashLockName("retry-scheduler"))
}

func TestBuildDocumentListQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    domain.DocumentFilter
		wantWhere []string
		wantArgs  []any
	}{
		{
			name:     "no filter",
			filter:   domain.DocumentFilter{},
			wantArgs: nil,
		},
		{
			name:      "owner and status",
			filter:    domain.DocumentFilter{Owner: "alice", Status: domain.ChunkingStatusError},
			wantWhere: []string{"owner = $1", "chunking_status = $2"},
			wantArgs:  []any{"alice", "error"},
		},
		{
			name:      "public only with paging",
			filter:    domain.DocumentFilter{Visibility: domain.VisibilityPublic, Limit: 10, Offset: 20},
			wantWhere: []string{"is_public = TRUE", "LIMIT $1", "OFFSET $2"},
			wantArgs:  []any{10, 20},
		},
		{
			name:      "category slug private",
			filter:    domain.DocumentFilter{Category: "law", Slug: "contract", Visibility: domain.VisibilityPrivate},
			wantWhere: []string{"category = $1", "slug = $2", "is_public = FALSE"},
			wantArgs:  []any{"law", "contract"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildDocumentListQuery(tt.filter)
			assert.Contains(t, query, "ORDER BY created_at DESC")
			for _, fragment := range tt.wantWhere {
				assert.Contains(t, query, fragment)
			}
			if len(tt.wantWhere) == 0 {
				assert.NotContains(t, query, "WHERE")
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildCandidatesQuery(t *testing.T) {
	tests := []struct {
		name     string
		filter   domain.AccessFilter
		contains []string
		absent   []string
		wantArgs []any
	}{
		{
			name:     "staff sees everything",
			filter:   domain.AccessFilter{AllDocuments: true, Owner: "root"},
			contains: []string{"c.embedding IS NOT NULL"},
			absent:   []string{"d.owner", "d.is_public"},
		},
		{
			name:     "user sees own and public",
			filter:   domain.AccessFilter{Owner: "alice"},
			contains: []string{"(d.is_public = TRUE OR d.owner = $1)"},
			wantArgs: []any{"alice"},
		},
		{
			name:     "anonymous sees public",
			filter:   domain.AccessFilter{},
			contains: []string{"d.is_public = TRUE"},
			absent:   []string{"d.owner"},
		},
		{
			name:     "slug and private",
			filter:   domain.AccessFilter{Owner: "alice", DocumentSlugs: []string{"notes"}, Visibility: domain.VisibilityPrivate},
			contains: []string{"d.slug = ANY($2)", "d.is_public = FALSE"},
			wantArgs: []any{"alice", pq.Array([]string{"notes"})},
		},
		{
			name:     "several slugs",
			filter:   domain.AccessFilter{AllDocuments: true, DocumentSlugs: []string{"notes", "handbook"}},
			contains: []string{"d.slug = ANY($1)"},
			absent:   []string{"d.owner"},
			wantArgs: []any{pq.Array([]string{"notes", "handbook"})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildCandidatesQuery(tt.filter)
			assert.True(t, strings.Contains(query, "JOIN documents d ON d.id = c.document_id"))
			for _, fragment := range tt.contains {
				assert.Contains(t, query, fragment)
			}
			for _, fragment := range tt.absent {
				assert.NotContains(t, query, fragment)
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildNearestQuery(t *testing.T) {
	query, args := buildNearestQuery(
		domain.AccessFilter{Owner: "alice", DocumentSlugs: []string{"notes"}},
		[]float32{1, 0, 0},
		3,
	)

	assert.Contains(t, query, "(d.is_public = TRUE OR d.owner = $1)")
	assert.Contains(t, query, "d.slug = ANY($2)")
	assert.Contains(t, query, "vector_dims(c.embedding) = $3")
	assert.Contains(t, query, "c.embedding <=> $4 AS distance")
	assert.Contains(t, query, "ORDER BY distance, c.document_id, c.chunk_index")
	assert.Contains(t, query, "LIMIT $5")
	require.Len(t, args, 5)
	assert.Equal(t, 3, args[2])
	assert.Equal(t, []float32{1, 0, 0}, args[3].(pgvector.Vector).Slice())
	assert.Equal(t, 3, args[4])
}

func TestBuildNearestQuery_DefaultTopN(t *testing.T) {
	query, args := buildNearestQuery(domain.AccessFilter{AllDocuments: true}, []float32{1}, 0)

	assert.Contains(t, query, "c.embedding <=> $2 AS distance")
	assert.Contains(t, query, "LIMIT $3")
	assert.NotContains(t, query, "d.owner")
	assert.Equal(t, []any{1, pgvector.NewVector([]float32{1}), domain.DefaultTopN}, args)
}

func TestEmbeddingValue(t *testing.T) {
	assert.Nil(t, embeddingValue(nil))
	assert.Nil(t, embeddingValue([]float32{}))

	v, ok := embeddingValue([]float32{0.5, -1}).(pgvector.Vector)
	if assert.True(t, ok) {
		assert.Equal(t, []float32{0.5, -1}, v.Slice())
	}
}

func TestConnect_EmptyURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNullTimeRoundTrip(t *testing.T) {
	assert.False(t, NullTime(nil).Valid)
	assert.Nil(t, TimePtr(NullTime(nil)))

	now := time.Now()
	got := TimePtr(NullTime(&now))
	if assert.NotNil(t, got) {
		assert.True(t, now.Equal(*got))
	}
}
