package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	pgstore "github.com/custodia-labs/smartchunk/internal/adapters/driven/postgres"
	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Ensure Queue implements TaskQueue
var _ driven.TaskQueue = (*Queue)(nil)

// pollInterval is how often an empty queue is re-checked while waiting
const pollInterval = time.Second

// Queue implements TaskQueue on the tasks table with SELECT ... FOR UPDATE SKIP LOCKED.
// It is the fallback when Redis is not configured.
type Queue struct {
	db *pgstore.DB
}

// NewQueue creates a new PostgreSQL-backed task queue.
// The tasks table comes from the store schema (DB.InitSchema).
func NewQueue(db *pgstore.DB) *Queue {
	return &Queue{db: db}
}

const taskColumns = `id, type, payload, status, priority, attempts, max_attempts, error,
	created_at, updated_at, started_at, completed_at, scheduled_for`

// Enqueue inserts the task. An existing ID is reset to the new task's state.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			scheduled_for = EXCLUDED.scheduled_for
	`
	_, err = q.db.ExecContext(ctx, query,
		task.ID,
		string(task.Type),
		payload,
		string(task.Status),
		task.Priority,
		task.Attempts,
		task.MaxAttempts,
		task.Error,
		task.CreatedAt,
		task.UpdatedAt,
		pgstore.NullTime(task.StartedAt),
		pgstore.NullTime(task.CompletedAt),
		task.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// DequeueWithTimeout claims the next due task, polling for up to timeout seconds.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	for {
		task, err := q.claimNext(ctx)
		if err != nil || task != nil {
			return task, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(min(pollInterval, time.Until(deadline))):
		}
	}
}

func (q *Queue) claimNext(ctx context.Context) (*domain.Task, error) {
	var task *domain.Task
	err := q.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE status = $1 AND scheduled_for <= NOW()
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, string(domain.TaskStatusPending))

		found, err := scanTask(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select task: %w", err)
		}

		found.MarkProcessing()
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET status = $1, started_at = $2, updated_at = $3, attempts = $4
			WHERE id = $5
		`, string(found.Status), found.StartedAt, found.UpdatedAt, found.Attempts, found.ID)
		if err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		task = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Ack marks a task as completed
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	now := time.Now()
	result, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, completed_at = $2, updated_at = $2, error = ''
		WHERE id = $3
	`, string(domain.TaskStatusCompleted), now, taskID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Nack reschedules the task with backoff, or fails it once attempts run out.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.CanRetry() {
		task.Retry(reason)
	} else {
		task.MarkFailed(reason)
	}

	_, err = q.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, error = $2, updated_at = $3, scheduled_for = $4
		WHERE id = $5
	`, string(task.Status), task.Error, task.UpdatedAt, task.ScheduledFor, task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := scanTask(q.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Stats returns queue statistics
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	stats := &driven.QueueStats{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch domain.TaskStatus(status) {
		case domain.TaskStatusPending:
			stats.PendingCount = count
		case domain.TaskStatusProcessing:
			stats.ProcessingCount = count
		case domain.TaskStatusCompleted:
			stats.CompletedCount = count
		case domain.TaskStatusFailed:
			stats.FailedCount = count
		}
	}
	return stats, rows.Err()
}

// Ping checks database connectivity
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by the caller
func (q *Queue) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var taskType, status string
	var payload []byte
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&taskType,
		&payload,
		&status,
		&task.Priority,
		&task.Attempts,
		&task.MaxAttempts,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
		&startedAt,
		&completedAt,
		&task.ScheduledFor,
	)
	if err != nil {
		return nil, err
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	task.StartedAt = pgstore.TimePtr(startedAt)
	task.CompletedAt = pgstore.TimePtr(completedAt)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &task, nil
}
