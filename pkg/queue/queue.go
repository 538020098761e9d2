// Package queue distributes document OCR tasks over asynq so several worker
// processes can share one run.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/filing-pipeline/internal/marker"
	"github.com/feichai0017/filing-pipeline/internal/models"
)

const TaskTypeDocumentOCR = "filing:ocr"

const statusTTL = 24 * time.Hour

// ErrTaskNotFound is returned by GetTaskStatus for an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

// Queue accepts documents for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, ref models.SourceRef) (bool, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
}

// DocumentPayload is the body of a filing:ocr task.
type DocumentPayload struct {
	Ref        models.SourceRef `json:"ref"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	DocumentID string    `json:"documentId,omitempty"`
	Status     string    `json:"status"`
	OutputKey  string    `json:"outputKey,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr string
	RedisDB   int
	Queue     string
	Timeout   time.Duration
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	queue     string
	timeout   time.Duration
	now       func() time.Time
}

func NewAsynqQueue(cfg *QueueConfig) *AsynqQueue {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}
	q := &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis: redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}),
		queue:   cfg.Queue,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
	if q.queue == "" {
		q.queue = "default"
	}
	if q.timeout <= 0 {
		q.timeout = 30 * time.Minute
	}
	return q
}

// TaskID is the marker hash of ref, so a document has at most one task
// alive in the queue.
func TaskID(ref models.SourceRef) string {
	return marker.Hash(ref)
}

// NewTask builds the task for ref. Retries are left to the OCR invoker, so
// asynq never retries it.
func (q *AsynqQueue) NewTask(ref models.SourceRef) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentPayload{Ref: ref, EnqueuedAt: q.now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(TaskTypeDocumentOCR, payload,
		asynq.TaskID(TaskID(ref)),
		asynq.MaxRetry(0),
		asynq.Timeout(q.timeout),
		asynq.Queue(q.queue),
	), nil
}

// Enqueue reports false when a task for ref is already queued or running.
func (q *AsynqQueue) Enqueue(ctx context.Context, ref models.SourceRef) (bool, error) {
	t, err := q.NewTask(ref)
	if err != nil {
		return false, err
	}
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return false, nil
		}
		return false, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return true, nil
}

// GetTaskStatus prefers the final status saved by a worker and falls back to
// the live task state.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	info, err := q.inspector.GetTaskInfo(q.queue, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to inspect task: %w", err)
	}
	return convertAsynqStatus(info), nil
}

func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func statusKey(taskID string) string {
	return "task_status:" + taskID
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}
	var payload DocumentPayload
	if err := json.Unmarshal(info.Payload, &payload); err == nil {
		status.DocumentID = payload.Ref.ID()
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		status.Status = "pending"
	case asynq.TaskStateActive:
		status.Status = "running"
	case asynq.TaskStateCompleted:
		status.Status = "completed"
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateArchived, asynq.TaskStateRetry:
		status.Status = "failed"
		status.Error = info.LastErr
	default:
		status.Status = info.State.String()
	}
	return status
}
