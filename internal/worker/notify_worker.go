package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/service"
)

// NotifyRunner sends completion notifications
type NotifyRunner interface {
	RunNotify(ctx context.Context, t *service.NotifyTask) error
}

// NotifyWorker processes pipeline:notify tasks
type NotifyWorker struct {
	pipeline NotifyRunner
	log      *logger.Logger
}

// NewNotifyWorker creates a new notify worker
func NewNotifyWorker(pipeline NotifyRunner, log *logger.Logger) *NotifyWorker {
	return &NotifyWorker{
		pipeline: pipeline,
		log:      log.With("worker", "notify"),
	}
}

// ProcessTask handles notify task processing
func (w *NotifyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task service.NotifyTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal notify payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.pipeline.RunNotify(ctx, &task); err != nil {
		w.log.Warn("notify task failed", "jobId", task.JobID, "owner", task.Owner, "error", err)
		return err
	}
	return nil
}
