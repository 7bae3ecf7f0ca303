package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
	"github.com/custodia-labs/smartchunk/internal/retrieval"
)

// MockChunkStore is an in-memory ChunkStore for testing
type MockChunkStore struct {
	mu         sync.RWMutex
	byDocument map[string][]*domain.Chunk

	// Documents resolves chunk owners for Candidates. When nil every chunk is a candidate.
	Documents driven.DocumentStore

	// Custom behavior hooks (optional)
	SaveBatchFn func(chunks []*domain.Chunk) error

	saveBatchCalls int
	nearestCalls   int
}

// NewMockChunkStore creates a new MockChunkStore
func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{
		byDocument: make(map[string][]*domain.Chunk),
	}
}

// SaveBatch replaces the chunks of every document in the batch, all or nothing
func (m *MockChunkStore) SaveBatch(ctx context.Context, chunks []*domain.Chunk) error {
	m.mu.Lock()
	m.saveBatchCalls++
	m.mu.Unlock()

	if m.SaveBatchFn != nil {
		if err := m.SaveBatchFn(chunks); err != nil {
			return err
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	grouped := make(map[string][]*domain.Chunk)
	for _, chunk := range chunks {
		cp := *chunk
		grouped[chunk.DocumentID] = append(grouped[chunk.DocumentID], &cp)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for docID, docChunks := range grouped {
		sort.Slice(docChunks, func(i, j int) bool { return docChunks[i].ChunkIndex < docChunks[j].ChunkIndex })
		m.byDocument[docID] = docChunks
	}
	return nil
}

func (m *MockChunkStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := m.byDocument[documentID]
	result := make([]*domain.Chunk, len(chunks))
	copy(result, chunks)
	return result, nil
}

func (m *MockChunkStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDocument[documentID]), nil
}

func (m *MockChunkStore) Candidates(ctx context.Context, filter domain.AccessFilter) ([]*domain.Chunk, error) {
	m.mu.RLock()
	docIDs := make([]string, 0, len(m.byDocument))
	for id := range m.byDocument {
		docIDs = append(docIDs, id)
	}
	m.mu.RUnlock()
	sort.Strings(docIDs)

	var result []*domain.Chunk
	for _, docID := range docIDs {
		if m.Documents != nil {
			doc, err := m.Documents.Get(ctx, docID)
			if err != nil || !filter.Allows(doc) {
				continue
			}
		}
		chunks, _ := m.GetByDocument(ctx, docID)
		for _, chunk := range chunks {
			if chunk.HasEmbedding() {
				result = append(result, chunk)
			}
		}
	}
	return result, nil
}

// Nearest ranks Candidates in memory with retrieval.Rank
func (m *MockChunkStore) Nearest(ctx context.Context, filter domain.AccessFilter, vector []float32, topN int) ([]domain.ScoredChunk, error) {
	m.mu.Lock()
	m.nearestCalls++
	m.mu.Unlock()

	candidates, err := m.Candidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	return retrieval.Rank(candidates, vector, topN), nil
}

func (m *MockChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byDocument, documentID)
	return nil
}

// Helper methods for testing

func (m *MockChunkStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, chunks := range m.byDocument {
		total += len(chunks)
	}
	return total
}

func (m *MockChunkStore) SaveBatchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveBatchCalls
}

func (m *MockChunkStore) NearestCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nearestCalls
}
