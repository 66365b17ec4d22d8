package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/makeasinger/lipsync/internal/model"
)

// HandleLipsyncCallback applies a lip-sync renderer callback to the job and,
// on the first completed delivery, hands the result to the caption renderer.
//
// Stage-1 fields are durably merged before any chaining happens. Chaining
// failures never fail the callback.
func (s *PipelineService) HandleLipsyncCallback(ctx context.Context, owner string, cb *model.LipsyncCallback) error {
	ctx, span := tracer.Start(ctx, "pipeline.HandleLipsyncCallback")
	defer span.End()

	owner = strings.TrimSpace(owner)
	jobID := cb.JobID()
	if owner == "" {
		return fmt.Errorf("%w: missing %s parameter", ErrInvalidRequest, OwnerParam)
	}
	if jobID == "" {
		return fmt.Errorf("%w: missing job id", ErrInvalidRequest)
	}
	if strings.TrimSpace(cb.Status) == "" {
		return fmt.Errorf("%w: missing status", ErrInvalidRequest)
	}
	span.SetAttributes(attribute.String("owner", owner), attribute.String("job.id", jobID))

	log := s.log.With("jobId", jobID, "owner", owner)
	status := model.ParseStatus(cb.Status)
	now := s.now()

	if err := s.store.MergeStatus(ctx, owner, jobID, model.FieldStatus, status, model.FieldCompletedAt, now); err != nil {
		recordError(span, err)
		return mapStoreError(err)
	}
	log.Info("lipsync status merged", "status", status.String())

	if status.Kind == model.StatusFailed {
		s.broadcast(&model.WSJobUpdate{
			Type:   model.WSMessageTypeError,
			JobID:  jobID,
			Stage:  model.StageLipsync,
			Status: status,
			Error:  &model.WSError{Code: "LIPSYNC_FAILED", Message: "lip-sync rendering failed"},
		})
		return nil
	}

	outputURL := strings.TrimSpace(cb.OutputURL)
	if !status.IsCompleted() || outputURL == "" {
		s.broadcast(&model.WSJobUpdate{
			Type:   model.WSMessageTypeStatus,
			JobID:  jobID,
			Stage:  model.StageLipsync,
			Status: status,
		})
		return nil
	}

	result := model.JobPatch{}
	result.SetString(model.FieldResultURL, outputURL)
	result.SetFloat(model.FieldResultDurationSeconds, cb.OutputDuration)
	result.SetString(model.FieldResultModel, cb.Model)
	result.SetTime(model.FieldCompletedAt, &now)

	applied, err := s.store.MergeOnce(ctx, owner, jobID, model.FieldResultURL, result)
	if err != nil {
		recordError(span, err)
		return mapStoreError(err)
	}
	if !applied {
		log.Info("lipsync result already recorded, keeping first delivery")
	}

	// Caption parameters and the notify address were stored at intake.
	job, err := s.store.Get(ctx, owner, jobID)
	if err != nil {
		recordError(span, err)
		return mapStoreError(err)
	}

	s.broadcast(&model.WSJobUpdate{
		Type:      model.WSMessageTypeStatus,
		JobID:     jobID,
		Stage:     model.StageLipsync,
		Status:    job.Status,
		ResultURL: job.ResultURL,
	})

	if job.SecondaryJobID != "" {
		log.Info("captions already linked, skipping chain", "secondaryJobId", job.SecondaryJobID)
		return nil
	}
	if job.NotifyAddress == "" {
		log.Info("no notify address on job, skipping chain")
		return nil
	}

	claimed, err := s.store.Claim(ctx, owner, jobID, model.FieldChainRequestedAt, now)
	if err != nil {
		log.Error("failed to record chain intent", "error", err)
		return nil
	}
	if !claimed {
		log.Info("chain already requested by another delivery")
		return nil
	}

	s.dispatchChain(ctx, &ChainTask{Owner: owner, JobID: jobID})
	return nil
}
