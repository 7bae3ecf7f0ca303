package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockDistributedLock is an in-memory DistributedLock with TTL expiry.
// Ingestion tests use SetLockHeld to simulate a second worker owning a document.
type MockDistributedLock struct {
	mu      sync.Mutex
	expires map[string]time.Time
	// acquired records every name successfully acquired, in order
	acquired []string
	extended int

	AcquireFn func(name string, ttl time.Duration) (bool, error)
	ExtendFn  func(name string, ttl time.Duration) error
	PingFn    func() error
}

// NewMockDistributedLock creates a new mock distributed lock.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{expires: make(map[string]time.Time)}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heldLocked(name) {
		return false, nil
	}
	m.expires[name] = time.Now().Add(ttl)
	m.acquired = append(m.acquired, name)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	if m.ExtendFn != nil {
		return m.ExtendFn(name, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extended++
	if !m.heldLocked(name) {
		return fmt.Errorf("lock %s not held", name)
	}
	m.expires[name] = time.Now().Add(ttl)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

func (m *MockDistributedLock) heldLocked(name string) bool {
	expiry, ok := m.expires[name]
	return ok && time.Now().Before(expiry)
}

// Acquired returns the names of every successful acquisition, oldest first
func (m *MockDistributedLock) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquired...)
}

// Extended returns how many times a held lock was extended
func (m *MockDistributedLock) Extended() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extended
}

// IsHeld reports whether name is locked and unexpired
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldLocked(name)
}

// SetLockHeld marks name as held by someone else for ttl
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[name] = time.Now().Add(ttl)
}
