package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/makeasinger/lipsync/internal/client"
	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/model"
	"github.com/makeasinger/lipsync/internal/store"
)

const (
	LipsyncWebhookPath  = "/webhooks/lipsync"
	CaptionsWebhookPath = "/webhooks/captions"

	// OwnerParam carries the owner id on provider callback URLs.
	OwnerParam = "uid"
)

var tracer = otel.Tracer("github.com/makeasinger/lipsync/internal/service")

// JobStore is the job document persistence the pipeline coordinates through.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, owner, jobID string) (*model.Job, error)
	Merge(ctx context.Context, owner, jobID string, patch model.JobPatch) error
	MergeOnce(ctx context.Context, owner, jobID, guard string, patch model.JobPatch) (bool, error)
	Claim(ctx context.Context, owner, jobID, field string, at time.Time) (bool, error)
	MergeStatus(ctx context.Context, owner, jobID, statusField string, status model.Status, sealField string, at time.Time) error
	LinkSecondary(ctx context.Context, owner, jobID, secondaryID string, at time.Time) (bool, error)
	FindBySecondary(ctx context.Context, owner, secondaryID string) (*model.Job, error)
	SaveFinished(ctx context.Context, video *model.FinishedVideo) error
	ListFinished(ctx context.Context, owner string, limit int) ([]*model.FinishedVideo, error)
}

// Broadcaster pushes job updates to live subscribers.
type Broadcaster interface {
	BroadcastJobUpdate(update *model.WSJobUpdate)
}

// TaskEnqueuer is the subset of *asynq.Client used to queue side effects.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PipelineConfig holds the pipeline's tunables
type PipelineConfig struct {
	PublicURL      string
	NotifySubject  string
	ChainMaxRetry  int
	NotifyMaxRetry int
	PresignTTL     time.Duration
}

// Option customizes a PipelineService
type Option func(*PipelineService)

// WithQueue runs chaining and notification through asynq instead of inline.
func WithQueue(q TaskEnqueuer) Option {
	return func(s *PipelineService) { s.queue = q }
}

// WithBroadcaster publishes job transitions to live subscribers.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *PipelineService) { s.hub = b }
}

// WithPresigner lets intake accept bare storage keys as source references.
func WithPresigner(p client.Presigner) Option {
	return func(s *PipelineService) { s.presigner = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *PipelineService) { s.now = now }
}

// PipelineService drives a job through the lip-sync and caption renderers.
// All coordination between intake and the two webhook handlers goes through
// the job document in the store.
type PipelineService struct {
	store     JobStore
	lipsync   client.LipsyncRenderer
	captions  client.CaptionRenderer
	mailer    client.Mailer
	presigner client.Presigner
	queue     TaskEnqueuer
	hub       Broadcaster
	cfg       PipelineConfig
	log       *logger.Logger
	now       func() time.Time
}

func NewPipelineService(
	jobStore JobStore,
	lipsync client.LipsyncRenderer,
	captions client.CaptionRenderer,
	mailer client.Mailer,
	log *logger.Logger,
	cfg PipelineConfig,
	opts ...Option,
) *PipelineService {
	if cfg.NotifySubject == "" {
		cfg.NotifySubject = "Your video is ready"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 6 * time.Hour
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	s := &PipelineService{
		store:    jobStore,
		lipsync:  lipsync,
		captions: captions,
		mailer:   mailer,
		cfg:      cfg,
		log:      log.With("component", "pipeline"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob starts a lip-sync generation and records the job document before
// returning, so the document exists by the time the renderer can call back.
func (s *PipelineService) CreateJob(ctx context.Context, caller model.Identity, req *model.CreateJobRequest) (*model.CreateJobResponse, error) {
	ctx, span := tracer.Start(ctx, "pipeline.CreateJob")
	defer span.End()

	owner := strings.TrimSpace(caller.UserID)
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if declared := strings.TrimSpace(req.OwnerID); declared != "" && declared != owner {
		return nil, fmt.Errorf("%w: owner mismatch", ErrForbidden)
	}
	span.SetAttributes(attribute.String("owner", owner))

	audioRef := strings.TrimSpace(req.SourceAudioRef)
	videoRef := strings.TrimSpace(req.SourceVideoRef)
	if audioRef == "" || videoRef == "" {
		return nil, fmt.Errorf("%w: sourceAudioRef and sourceVideoRef are required", ErrInvalidRequest)
	}

	audioURL, err := s.resolveSource(ctx, audioRef)
	if err != nil {
		return nil, err
	}
	videoURL, err := s.resolveSource(ctx, videoRef)
	if err != nil {
		return nil, err
	}

	resp, err := s.lipsync.CreateGeneration(ctx, &client.LipsyncRequest{
		SourceAudioRef: audioURL,
		SourceVideoRef: videoURL,
		CallbackURL:    s.callbackURL(LipsyncWebhookPath, owner),
	})
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("%w: lipsync renderer: %v", ErrUpstream, err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, fmt.Errorf("%w: lipsync renderer returned no job id", ErrUpstream)
	}

	notifyAddress := strings.TrimSpace(req.NotifyAddress)
	if notifyAddress == "" {
		notifyAddress = strings.TrimSpace(caller.Email)
	}

	now := s.now()
	job := &model.Job{
		ID:              resp.ID,
		Owner:           owner,
		Status:          model.ProcessingStatus,
		SourceAudioRef:  audioRef,
		SourceVideoRef:  videoRef,
		ResultModel:     resp.Model,
		CreatedAt:       now,
		UpdatedAt:       now,
		CaptionLanguage: strings.TrimSpace(req.CaptionLanguage),
		CaptionTemplate: strings.TrimSpace(req.CaptionTemplate),
		NotifyAddress:   notifyAddress,
	}
	span.SetAttributes(attribute.String("job.id", job.ID))

	if err := s.store.Create(ctx, job); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.log.Info("job created", "jobId", job.ID, "owner", owner, "model", resp.Model)
	s.broadcast(&model.WSJobUpdate{
		Type:   model.WSMessageTypeStatus,
		JobID:  job.ID,
		Stage:  model.StageLipsync,
		Status: job.Status,
	})

	return &model.CreateJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Model:     resp.Model,
		CreatedAt: now,
	}, nil
}

// GetJob returns one of the caller's job documents.
func (s *PipelineService) GetJob(ctx context.Context, owner, jobID string) (*model.Job, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	job, err := s.store.Get(ctx, owner, jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return job, nil
}

// ListVideos returns the caller's finished videos, newest first.
func (s *PipelineService) ListVideos(ctx context.Context, owner string, limit int) ([]*model.FinishedVideo, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	return s.store.ListFinished(ctx, owner, limit)
}

// resolveSource passes URLs through and presigns bare storage keys.
func (s *PipelineService) resolveSource(ctx context.Context, ref string) (string, error) {
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return ref, nil
	}
	if s.presigner == nil {
		return "", fmt.Errorf("%w: source %q is not a URL and storage is not configured", ErrInvalidRequest, ref)
	}
	signed, err := s.presigner.GetSignedURL(ctx, strings.TrimPrefix(ref, "/"), s.cfg.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign source %q: %w", ref, err)
	}
	return signed, nil
}

// callbackURL builds an owner-scoped provider callback URL.
func (s *PipelineService) callbackURL(path, owner string) string {
	q := url.Values{}
	q.Set(OwnerParam, owner)
	return s.cfg.PublicURL + path + "?" + q.Encode()
}

func (s *PipelineService) broadcast(update *model.WSJobUpdate) {
	if s.hub != nil {
		s.hub.BroadcastJobUpdate(update)
	}
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrJobNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
