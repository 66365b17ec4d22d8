package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/middleware"
	"github.com/makeasinger/lipsync/internal/model"
	"github.com/makeasinger/lipsync/pkg/response"
)

const maxVideosLimit = 200

// JobService is the intake and read side of the pipeline
type JobService interface {
	CreateJob(ctx context.Context, caller model.Identity, req *model.CreateJobRequest) (*model.CreateJobResponse, error)
	GetJob(ctx context.Context, owner, jobID string) (*model.Job, error)
	ListVideos(ctx context.Context, owner string, limit int) ([]*model.FinishedVideo, error)
}

type JobHandler struct {
	service   JobService
	validator *validator.Validate
	log       *logger.Logger
}

func NewJobHandler(svc JobService, v *validator.Validate, log *logger.Logger) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
		log:       log.With("handler", "jobs"),
	}
}

// Create handles POST /api/jobs
// @Summary      Start a lip-sync job
// @Description  Submit audio and video sources. Captions and the completion email follow automatically.
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.CreateJobRequest true "Job request"
// @Success      201 {object} model.CreateJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs [post]
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateJob(c.UserContext(), middleware.GetIdentity(c), &req)
	if err != nil {
		h.log.Warn("job intake failed", "userId", middleware.GetUserID(c), "error", err)
		return writeServiceError(c, err)
	}

	return response.Created(c, result)
}

// Get handles GET /api/jobs/:jobId
// @Summary      Get job
// @Description  Return the job document for one of the caller's jobs
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId} [get]
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.UserContext(), middleware.GetUserID(c), jobID)
	if err != nil {
		return writeServiceError(c, err)
	}

	return response.OK(c, job)
}

// AuthorizeWatch admits a live update subscription only for one of the
// caller's own jobs. Runs before the WebSocket upgrade.
func (h *JobHandler) AuthorizeWatch(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}
	if _, err := h.service.GetJob(c.UserContext(), middleware.GetUserID(c), jobID); err != nil {
		return writeServiceError(c, err)
	}
	return c.Next()
}

// ListVideos handles GET /api/videos
// @Summary      List finished videos
// @Description  Captioned videos for the caller, newest first
// @Tags         Jobs
// @Produce      json
// @Param        limit query int false "Maximum number of videos" default(50)
// @Success      200 {array} model.FinishedVideo
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/videos [get]
func (h *JobHandler) ListVideos(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return response.ValidationError(c, "limit must be positive", nil)
	}
	if limit > maxVideosLimit {
		limit = maxVideosLimit
	}

	videos, err := h.service.ListVideos(c.UserContext(), middleware.GetUserID(c), limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	if videos == nil {
		videos = []*model.FinishedVideo{}
	}

	return response.OK(c, fiber.Map{"videos": videos})
}
