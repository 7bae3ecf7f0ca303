package mocks

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Embeddings are deterministic per text unless overridden with SetVector.
type MockEmbeddingService struct {
	mu         sync.Mutex
	dimensions int
	model      string
	vectors    map[string][]float32
	failAtText int // 1-based position across all embedded texts, 0 = never
	textsSeen  int
	calls      int
	queries    int

	// Custom behavior hooks (optional)
	EmbedFn func(texts []string) ([][]float32, error)
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: 8,
		model:      "mock-embedding-model",
		vectors:    make(map[string][]float32),
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if text == "" {
			return nil, domain.ErrEmptyInput
		}
	}

	m.mu.Lock()
	m.calls++
	start := m.textsSeen
	m.textsSeen += len(texts)
	failAt := m.failAtText
	m.mu.Unlock()

	if failAt > 0 && start < failAt && failAt <= start+len(texts) {
		return nil, fmt.Errorf("%w: simulated outage on text %d", domain.ErrEmbeddingFailed, failAt)
	}
	if m.EmbedFn != nil {
		return m.EmbedFn(texts)
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.vectorFor(text)
	}
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, domain.ErrEmptyInput
	}
	m.mu.Lock()
	m.queries++
	m.mu.Unlock()
	if m.EmbedFn != nil {
		vectors, err := m.EmbedFn([]string{query})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	}
	return m.vectorFor(query), nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

func (m *MockEmbeddingService) vectorFor(text string) []float32 {
	m.mu.Lock()
	v, ok := m.vectors[text]
	m.mu.Unlock()
	if ok {
		return v
	}

	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000)/500.0 - 1.0
	}
	return embedding
}

// Helper methods for testing

// SetVector pins the embedding returned for text
func (m *MockEmbeddingService) SetVector(text string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = v
}

// FailAtText makes the call containing the n-th embedded text (1-based) fail
func (m *MockEmbeddingService) FailAtText(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAtText = n
}

func (m *MockEmbeddingService) SetDimensions(dim int) {
	m.dimensions = dim
}

// Calls returns the number of Embed calls made
func (m *MockEmbeddingService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// QueryCalls returns the number of EmbedQuery calls that reached the model
func (m *MockEmbeddingService) QueryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}
