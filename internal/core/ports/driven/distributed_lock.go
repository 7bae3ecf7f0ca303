package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates work across worker instances.
// Ingestion takes one lock per document so a document is never chunked twice at once.
type DistributedLock interface {
	// Acquire attempts to acquire a named lock with the given TTL.
	// Returns false without error when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release releases a named lock. Safe to call when the lock is not held.
	Release(ctx context.Context, name string) error

	// Extend extends the TTL of a lock held by this instance.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}

// DocumentLockName is the lock guarding a document's chunking pass
func DocumentLockName(documentID string) string {
	return "document:" + documentID
}
