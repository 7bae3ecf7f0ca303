package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

// MockDocumentStore is an in-memory DocumentStore for testing.
// Documents are copied on the way in and out, like a real database row.
type MockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document

	// Custom behavior hooks (optional)
	SaveFn func(doc *domain.Document) error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		documents: make(map[string]*domain.Document),
	}
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(doc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.documents[doc.ID] = &cp
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MockDocumentStore) GetBySlug(ctx context.Context, slug string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.documents {
		if doc.Slug == slug {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDocumentStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := m.GetBySlug(ctx, slug)
	if err == domain.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *MockDocumentStore) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Document
	for _, doc := range m.documents {
		if filter.Owner != "" && doc.Owner != filter.Owner {
			continue
		}
		if filter.Category != "" && doc.Category != filter.Category {
			continue
		}
		if filter.Slug != "" && doc.Slug != filter.Slug {
			continue
		}
		if filter.Status != "" && doc.ChunkingStatus != filter.Status {
			continue
		}
		if filter.Visibility == domain.VisibilityPublic && !doc.IsPublic {
			continue
		}
		if filter.Visibility == domain.VisibilityPrivate && doc.IsPublic {
			continue
		}
		cp := *doc
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.Document{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockDocumentStore) ListRetryable(ctx context.Context, maxRetries int) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Document
	for _, doc := range m.documents {
		if doc.CanRetry(maxRetries) {
			cp := *doc
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.documents, id)
	return nil
}

// Helper methods for testing

func (m *MockDocumentStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents)
}
