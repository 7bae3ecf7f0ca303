package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driving"
)

// Ensure RetryScheduler implements the driving port
var _ driving.RetryScheduler = (*RetryScheduler)(nil)

// retrySchedulerLock serialises polling across worker instances
const retrySchedulerLock = "retry-scheduler"

// RetryScheduler periodically queues retry_document tasks for failed documents.
// It runs on worker nodes. With a DistributedLock configured, only one
// instance polls per cycle.
type RetryScheduler struct {
	documents  driven.DocumentStore
	taskQueue  driven.TaskQueue
	lock       driven.DistributedLock
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time

	// Internal state
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration
	lockTTL  time.Duration
}

// RetrySchedulerConfig holds configuration for the retry scheduler.
type RetrySchedulerConfig struct {
	Documents    driven.DocumentStore
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	MaxRetries   int           // Documents at this retry count are left alone (default: 3)
	PollInterval time.Duration // How often to look for failed documents (default: 60s)
	LockTTL      time.Duration // TTL for the distributed lock (default: 2x poll interval)
}

// NewRetryScheduler creates a new retry scheduler.
func NewRetryScheduler(cfg RetrySchedulerConfig) *RetryScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * interval
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &RetryScheduler{
		documents:  cfg.Documents,
		taskQueue:  cfg.TaskQueue,
		lock:       cfg.Lock,
		logger:     logger,
		maxRetries: maxRetries,
		now:        time.Now,
		interval:   interval,
		lockTTL:    lockTTL,
	}
}

// Start begins the polling loop.
// It runs until Stop is called or context is cancelled.
func (s *RetryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("retry scheduler starting", "poll_interval", s.interval, "max_retries", s.maxRetries)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *RetryScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("retry scheduler stopped")
}

func (s *RetryScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *RetryScheduler) poll(ctx context.Context) {
	queued, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("retry scheduler poll failed", "error", err)
		return
	}
	if queued > 0 {
		s.logger.Info("queued document retries", "count", queued)
	}
}

// RunOnce queues a retry for every failed document whose backoff has elapsed.
// Documents that already have a pending or running retry task are skipped.
func (s *RetryScheduler) RunOnce(ctx context.Context) (int, error) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, retrySchedulerLock, s.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire scheduler lock: %w", err)
		}
		if !acquired {
			s.logger.Debug("retry scheduler lock held by another instance, skipping cycle")
			return 0, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), retrySchedulerLock); err != nil {
				s.logger.Warn("failed to release retry scheduler lock", "error", err)
			}
		}()
	}

	docs, err := s.documents.ListRetryable(ctx, s.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("list retryable documents: %w", err)
	}

	now := s.now()
	queued := 0
	for _, doc := range docs {
		if !doc.RetryDue(now, s.maxRetries) {
			continue
		}

		task := domain.NewRetryDocumentTask(doc.ID)
		task.ID = RetryTaskID(doc)

		existing, err := s.taskQueue.GetTask(ctx, task.ID)
		switch {
		case err == nil && (existing.Status == domain.TaskStatusPending || existing.Status == domain.TaskStatusProcessing):
			continue
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("failed to look up retry task", "document_id", doc.ID, "task_id", task.ID, "error", err)
			continue
		}

		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			s.logger.Error("failed to enqueue retry task",
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}
		queued++
		s.logger.Debug("enqueued retry task",
			"document_id", doc.ID,
			"task_id", task.ID,
			"retry_count", doc.RetryCount,
		)
	}
	return queued, nil
}

// RetryTaskID is stable per document and attempt, so a retry is queued once
// however many polls see the document in error.
func RetryTaskID(doc *domain.Document) string {
	return fmt.Sprintf("retry-%s-%d", doc.ID, doc.RetryCount)
}
