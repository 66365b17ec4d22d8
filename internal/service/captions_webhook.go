package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/makeasinger/lipsync/internal/model"
)

// HandleCaptionsCallback applies a caption renderer callback. The job is
// resolved through the caption renderer's id, since that callback never
// carries the job id.
func (s *PipelineService) HandleCaptionsCallback(ctx context.Context, owner string, cb *model.CaptionsCallback, raw []byte) error {
	ctx, span := tracer.Start(ctx, "pipeline.HandleCaptionsCallback")
	defer span.End()

	owner = strings.TrimSpace(owner)
	secondaryID := strings.TrimSpace(cb.ProjectID)
	if owner == "" {
		return fmt.Errorf("%w: missing %s parameter", ErrInvalidRequest, OwnerParam)
	}
	if secondaryID == "" || strings.TrimSpace(cb.Status) == "" {
		return fmt.Errorf("%w: projectId and status are required", ErrInvalidRequest)
	}
	span.SetAttributes(attribute.String("owner", owner), attribute.String("captions.id", secondaryID))

	job, err := s.store.FindBySecondary(ctx, owner, secondaryID)
	if err != nil {
		recordError(span, err)
		return mapStoreError(err)
	}
	span.SetAttributes(attribute.String("job.id", job.ID))

	log := s.log.With("jobId", job.ID, "owner", owner, "secondaryJobId", secondaryID)
	status := model.ParseStatus(cb.Status)
	now := s.now()
	downloadURL := strings.TrimSpace(cb.DownloadURL)

	var completedAt *time.Time
	if status.IsCompleted() {
		completedAt = parseProviderTime(cb.CompletedAt, now)
	}

	if err := s.store.MergeStatus(ctx, owner, job.ID, model.FieldSecondaryStatus, status, model.FieldSecondaryCompletedAt, now); err != nil {
		recordError(span, err)
		return mapStoreError(err)
	}

	stageTwo := model.JobPatch{}
	stageTwo.SetString(model.FieldSecondaryResultURL, downloadURL)
	stageTwo.SetFloat(model.FieldSecondaryDurationSeconds, cb.Duration)
	stageTwo.SetTime(model.FieldSecondaryCompletedAt, completedAt)
	stageTwo.SetTime(model.FieldUpdatedAt, &now)
	applied, err := s.store.MergeOnce(ctx, owner, job.ID, model.FieldSecondaryCompletedAt, stageTwo)
	if err != nil {
		recordError(span, err)
		return mapStoreError(err)
	}
	if !applied {
		log.Info("captions result already recorded, keeping first delivery")
	}

	video := &model.FinishedVideo{
		ID:              job.ID,
		Owner:           owner,
		SecondaryJobID:  secondaryID,
		Title:           strings.TrimSpace(cb.Title),
		Status:          status,
		ResultURL:       downloadURL,
		DurationSeconds: cb.Duration,
		CompletedAt:     completedAt,
		UpdatedAt:       now,
	}
	if json.Valid(raw) {
		video.RawPayload = append(json.RawMessage(nil), raw...)
	}
	if err := s.store.SaveFinished(ctx, video); err != nil {
		recordError(span, err)
		return err
	}
	log.Info("captions status merged", "status", status.String())

	update := &model.WSJobUpdate{
		Type:      model.WSMessageTypeStatus,
		JobID:     job.ID,
		Stage:     model.StageCaptions,
		Status:    status,
		ResultURL: downloadURL,
	}
	switch {
	case status.Kind == model.StatusFailed:
		update.Type = model.WSMessageTypeError
		update.Error = &model.WSError{Code: "CAPTIONS_FAILED", Message: "caption rendering failed"}
	case status.IsCompleted() && downloadURL != "":
		update.Type = model.WSMessageTypeComplete
	}
	s.broadcast(update)

	if !status.IsCompleted() || downloadURL == "" {
		return nil
	}
	if job.NotifyAddress == "" {
		log.Info("no notify address on job, skipping notification")
		return nil
	}

	claimed, err := s.store.Claim(ctx, owner, job.ID, model.FieldNotifiedAt, now)
	if err != nil {
		log.Error("failed to record notification intent", "error", err)
		return nil
	}
	if !claimed {
		log.Info("notification already sent for job")
		return nil
	}

	s.dispatchNotify(ctx, &NotifyTask{
		Owner:     owner,
		JobID:     job.ID,
		To:        job.NotifyAddress,
		ResultURL: downloadURL,
	})
	return nil
}

// parseProviderTime accepts an RFC 3339 timestamp and falls back to now.
func parseProviderTime(raw string, now time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return &t
		}
	}
	return &now
}
