package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/service"
)

// ChainRunner starts the caption stage for a job
type ChainRunner interface {
	RunChain(ctx context.Context, t *service.ChainTask) error
}

// ChainWorker processes pipeline:chain tasks
type ChainWorker struct {
	pipeline ChainRunner
	log      *logger.Logger
}

// NewChainWorker creates a new chain worker
func NewChainWorker(pipeline ChainRunner, log *logger.Logger) *ChainWorker {
	return &ChainWorker{
		pipeline: pipeline,
		log:      log.With("worker", "chain"),
	}
}

// ProcessTask handles chain task processing. Malformed payloads are not retried.
func (w *ChainWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task service.ChainTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal chain payload: %v: %w", err, asynq.SkipRetry)
	}
	if task.Owner == "" || task.JobID == "" {
		return fmt.Errorf("chain payload missing owner or job id: %w", asynq.SkipRetry)
	}

	w.log.Info("starting chain task", "jobId", task.JobID, "owner", task.Owner)
	if err := w.pipeline.RunChain(ctx, &task); err != nil {
		w.log.Warn("chain task failed", "jobId", task.JobID, "owner", task.Owner, "error", err)
		return err
	}
	return nil
}
