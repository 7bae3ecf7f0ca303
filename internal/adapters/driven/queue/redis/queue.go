package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

const (
	taskStream     = "smartchunk:tasks"
	taskGroup      = "smartchunk:workers"
	scheduledTasks = "smartchunk:scheduled"
	taskKeyPrefix  = "smartchunk:task:"
	msgKeySuffix   = ":msg"

	consumerPrefix = "worker-"

	// Task records outlive their stream entry for status checks
	taskTTL = 24 * time.Hour
)

// DefaultClaimTimeout is how long a delivered message may sit unacked before
// another worker claims it. It exceeds the default document lock TTL.
const DefaultClaimTimeout = 15 * time.Minute

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue using Redis Streams and a consumer group.
// Task bodies live in plain keys; the stream only carries task IDs.
// Delayed tasks wait in a sorted set until they are due.
type Queue struct {
	client       *redis.Client
	consumer     string
	claimTimeout time.Duration
}

// NewQueue creates the consumer group if needed.
// consumer should be unique per worker process; empty picks one.
func NewQueue(ctx context.Context, client *redis.Client, consumer string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumer == "" {
		consumer = consumerPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	err := client.XGroupCreateMkStream(ctx, taskStream, taskGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Queue{client: client, consumer: consumer, claimTimeout: DefaultClaimTimeout}, nil
}

// Enqueue stores the task and makes it visible now or at ScheduledFor.
// Enqueueing an existing ID overwrites the stored task.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	if task.ScheduledFor.After(time.Now()) {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	} else {
		pipe.XAdd(ctx, streamEntry(task))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	return nil
}

// DequeueWithTimeout returns the next task or nil, nil after timeout seconds.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	// best effort: a failed promotion is retried on the next call
	_ = q.promoteScheduled(ctx)

	if task, err := q.claimAbandoned(ctx); err == nil && task != nil {
		return task, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumer,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    time.Duration(timeout) * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.take(ctx, streams[0].Messages[0])
}

// Ack marks the task completed and removes its stream entry.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkCompleted()
	return q.settle(ctx, task, false)
}

// Nack reschedules the task with backoff, or fails it once attempts run out.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.CanRetry() {
		task.Retry(reason)
		return q.settle(ctx, task, true)
	}
	task.MarkFailed(reason)
	return q.settle(ctx, task, false)
}

// GetTask retrieves a task by ID. Unknown or expired IDs give domain.ErrNotFound.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", taskID, err)
	}
	return &task, nil
}

// Stats counts tasks by status from the stored task records.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	iter := q.client.Scan(ctx, 0, taskKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, msgKeySuffix) {
			continue
		}
		data, err := q.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var task domain.Task
		if json.Unmarshal(data, &task) != nil {
			continue
		}
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the client is shared with the lock.
func (q *Queue) Close() error {
	return nil
}

// take marks a delivered message's task as processing and remembers the message ID.
func (q *Queue) take(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		// unreadable entry: drop it so it is not redelivered forever
		q.client.XAck(ctx, taskStream, taskGroup, msg.ID)
		q.client.XDel(ctx, taskStream, msg.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	task.MarkProcessing()
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	pipe.Set(ctx, taskKeyPrefix+task.ID+msgKeySuffix, msg.ID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark task %s processing: %w", task.ID, err)
	}
	return task, nil
}

// settle stores the task's new state, acks its message and optionally reschedules it.
func (q *Queue) settle(ctx context.Context, task *domain.Task, reschedule bool) error {
	msgKey := taskKeyPrefix + task.ID + msgKeySuffix
	msgID, err := q.client.Get(ctx, msgKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get message id: %w", err)
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	if reschedule {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	}
	pipe.Del(ctx, msgKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("settle task %s: %w", task.ID, err)
	}
	return nil
}

// promoteScheduled moves due delayed tasks onto the stream.
func (q *Queue) promoteScheduled(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, taskID := range due {
		pipe.ZRem(ctx, scheduledTasks, taskID)
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			continue
		}
		pipe.XAdd(ctx, streamEntry(task))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// SetClaimTimeout changes how long a message stays with its consumer before it
// may be claimed. It should be at least the document lock TTL; shorter values
// are raised to DefaultClaimTimeout.
func (q *Queue) SetClaimTimeout(d time.Duration) {
	q.claimTimeout = max(d, DefaultClaimTimeout)
}

// claimAbandoned takes over a message another consumer left unacked for too long.
func (q *Queue) claimAbandoned(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   q.claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumer,
			MinIdle:  q.claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		task, err := q.take(ctx, claimed[0])
		if err != nil || task == nil {
			continue
		}
		return task, nil
	}
	return nil, nil
}

func streamEntry(task *domain.Task) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]interface{}{
			"task_id":     task.ID,
			"type":        string(task.Type),
			"document_id": task.DocumentID(),
		},
	}
}
