package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
)

// Processor runs one document through the pipeline.
type Processor interface {
	ProcessOne(ctx context.Context, ref models.SourceRef) ingest.Outcome
}

// StatusStore keeps the final status of each task.
type StatusStore interface {
	SaveFinalStatus(ctx context.Context, status *queue.TaskStatus) error
}

type DocumentWorker struct {
	BaseWorker
	processor Processor
	statuses  StatusStore
	now       func() time.Time
}

func NewDocumentWorker(cfg *Config, processor Processor, statuses StatusStore, log logger.Logger) *DocumentWorker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		processor: processor,
		statuses:  statuses,
		now:       time.Now,
	}
	w.mux.HandleFunc(queue.TaskTypeDocumentOCR, w.handleDocument)
	return w
}

// handleDocument never asks asynq to retry: document failures are already
// in the failure ledger and a later run picks them up again.
func (w *DocumentWorker) handleDocument(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Ref.Key == "" {
		w.logger.Error("Invalid task data", logger.String("payload", string(t.Payload())))
		return fmt.Errorf("invalid task data: missing document key: %w", asynq.SkipRetry)
	}

	started := w.now()
	w.logger.Info("Processing document task",
		logger.String("document", payload.Ref.ID()),
		logger.Duration("queued", started.Sub(payload.EnqueuedAt)),
	)

	out := w.processor.ProcessOne(ctx, payload.Ref)

	status := &queue.TaskStatus{
		TaskID:     queue.TaskID(payload.Ref),
		DocumentID: payload.Ref.ID(),
		Status:     string(out.Status),
		OutputKey:  out.OutputKey,
		StartedAt:  started,
		FinishedAt: w.now(),
	}
	if out.Err != nil {
		status.Error = out.Err.Error()
	}
	if err := w.statuses.SaveFinalStatus(ctx, status); err != nil {
		w.logger.Error("Failed to save final status",
			logger.String("document", payload.Ref.ID()),
			logger.Error(err),
		)
	}

	if rw := t.ResultWriter(); rw != nil {
		if data, err := json.Marshal(status); err == nil {
			if _, err := rw.Write(data); err != nil {
				w.logger.Error("Failed to write task result", logger.Error(err))
			}
		}
	}
	return nil
}

// Start runs the server until ctx is done.
func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
	return nil
}
