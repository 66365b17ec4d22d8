package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/makeasinger/lipsync/internal/client"
	"github.com/makeasinger/lipsync/internal/model"
)

const (
	TaskTypeChain  = "pipeline:chain"
	TaskTypeNotify = "pipeline:notify"

	QueueChain  = "chain"
	QueueNotify = "notify"
)

// ChainTask asks for the caption stage to be started on a finished lip-sync job.
type ChainTask struct {
	Owner string `json:"owner"`
	JobID string `json:"jobId"`
}

// NotifyTask asks for the completion email to be sent.
type NotifyTask struct {
	Owner     string `json:"owner"`
	JobID     string `json:"jobId"`
	To        string `json:"to"`
	ResultURL string `json:"resultUrl"`
}

var notifyTemplate = template.Must(template.New("notify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<p>Your captioned video is ready.</p>
<p><a href="{{.ResultURL}}">Watch or download it here</a></p>
<p style="color: #888; font-size: 12px;">Job {{.JobID}}</p>
</body>
</html>`))

func (s *PipelineService) dispatchChain(ctx context.Context, t *ChainTask) {
	log := s.log.With("jobId", t.JobID, "owner", t.Owner)
	if s.queue != nil {
		queued, err := s.enqueue(TaskTypeChain, t,
			asynq.TaskID(fmt.Sprintf("chain:%s:%s", t.Owner, t.JobID)),
			asynq.Queue(QueueChain),
			asynq.MaxRetry(s.cfg.ChainMaxRetry),
			asynq.Retention(24*time.Hour),
		)
		if queued {
			log.Info("chain task queued")
			return
		}
		if err != nil {
			log.Warn("failed to queue chain task, running inline", "error", err)
		} else {
			return
		}
	}
	if err := s.RunChain(ctx, t); err != nil {
		log.Error("failed to start captions", "error", err)
	}
}

func (s *PipelineService) dispatchNotify(ctx context.Context, t *NotifyTask) {
	log := s.log.With("jobId", t.JobID, "owner", t.Owner)
	if s.queue != nil {
		queued, err := s.enqueue(TaskTypeNotify, t,
			asynq.TaskID(fmt.Sprintf("notify:%s:%s", t.Owner, t.JobID)),
			asynq.Queue(QueueNotify),
			asynq.MaxRetry(s.cfg.NotifyMaxRetry),
			asynq.Retention(24*time.Hour),
		)
		if queued {
			log.Info("notify task queued")
			return
		}
		if err != nil {
			log.Warn("failed to queue notify task, sending inline", "error", err)
		} else {
			return
		}
	}
	if err := s.RunNotify(ctx, t); err != nil {
		log.Error("failed to send notification", "error", err)
	}
}

// enqueue reports whether the task is now queued. A task id conflict means an
// earlier delivery already queued it: not queued by us, no error either.
func (s *PipelineService) enqueue(taskType string, payload interface{}, opts ...asynq.Option) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	if _, err := s.queue.Enqueue(asynq.NewTask(taskType, data), opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			s.log.Info("task already queued", "type", taskType)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RunChain starts the caption project for a job and links its id back onto
// the job document. Running it twice for the same job is harmless.
func (s *PipelineService) RunChain(ctx context.Context, t *ChainTask) error {
	ctx, span := tracer.Start(ctx, "pipeline.RunChain")
	defer span.End()
	span.SetAttributes(attribute.String("owner", t.Owner), attribute.String("job.id", t.JobID))

	log := s.log.With("jobId", t.JobID, "owner", t.Owner)

	job, err := s.store.Get(ctx, t.Owner, t.JobID)
	if err != nil {
		recordError(span, err)
		if errors.Is(mapStoreError(err), ErrNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if job.SecondaryJobID != "" {
		log.Info("captions already linked", "secondaryJobId", job.SecondaryJobID)
		return nil
	}
	if job.ResultURL == "" {
		return fmt.Errorf("job %s has no lip-sync result: %w", job.ID, asynq.SkipRetry)
	}

	resp, err := s.captions.CreateProject(ctx, &client.CaptionRequest{
		ResultURL:       job.ResultURL,
		CaptionLanguage: job.CaptionLanguage,
		CaptionTemplate: job.CaptionTemplate,
		CallbackURL:     s.callbackURL(CaptionsWebhookPath, t.Owner),
	})
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("%w: captions renderer: %v", ErrUpstream, err)
	}
	secondaryID := strings.TrimSpace(resp.ID)
	if secondaryID == "" {
		return fmt.Errorf("%w: captions renderer returned no project id", ErrUpstream)
	}

	linked, err := s.store.LinkSecondary(ctx, t.Owner, job.ID, secondaryID, s.now())
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to link captions project: %w", err)
	}
	if !linked {
		log.Warn("job already linked to another captions project", "secondaryJobId", secondaryID)
		return nil
	}

	log.Info("captions started", "secondaryJobId", secondaryID)
	s.broadcast(&model.WSJobUpdate{
		Type:   model.WSMessageTypeStatus,
		JobID:  job.ID,
		Stage:  model.StageCaptions,
		Status: model.ProcessingStatus,
	})
	return nil
}

// RunNotify sends the completion email for a job.
func (s *PipelineService) RunNotify(ctx context.Context, t *NotifyTask) error {
	ctx, span := tracer.Start(ctx, "pipeline.RunNotify")
	defer span.End()
	span.SetAttributes(attribute.String("owner", t.Owner), attribute.String("job.id", t.JobID))

	if strings.TrimSpace(t.To) == "" || strings.TrimSpace(t.ResultURL) == "" {
		return fmt.Errorf("notify task for job %s is incomplete: %w", t.JobID, asynq.SkipRetry)
	}

	var body bytes.Buffer
	if err := notifyTemplate.Execute(&body, t); err != nil {
		return fmt.Errorf("failed to render notification: %w", err)
	}

	messageID, err := s.mailer.Send(ctx, &client.EmailMessage{
		To:       t.To,
		Subject:  s.cfg.NotifySubject,
		HTMLBody: body.String(),
	})
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("%w: mailer: %v", ErrUpstream, err)
	}

	s.log.Info("notification sent", "jobId", t.JobID, "owner", t.Owner, "messageId", messageID)
	return nil
}
