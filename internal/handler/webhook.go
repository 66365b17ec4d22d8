package handler

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/model"
	"github.com/makeasinger/lipsync/internal/service"
	"github.com/makeasinger/lipsync/pkg/response"
)

// WebhookService applies renderer callbacks to job documents
type WebhookService interface {
	HandleLipsyncCallback(ctx context.Context, owner string, cb *model.LipsyncCallback) error
	HandleCaptionsCallback(ctx context.Context, owner string, cb *model.CaptionsCallback, raw []byte) error
}

type WebhookHandler struct {
	service   WebhookService
	validator *validator.Validate
	log       *logger.Logger
}

func NewWebhookHandler(svc WebhookService, v *validator.Validate, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:   svc,
		validator: v,
		log:       log.With("handler", "webhooks"),
	}
}

// Lipsync handles POST /webhooks/lipsync
// @Summary      Lip-sync renderer callback
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Param        uid query string true "Owner ID"
// @Param        request body model.LipsyncCallback true "Callback payload"
// @Success      200 {object} model.WebhookAck
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /webhooks/lipsync [post]
func (h *WebhookHandler) Lipsync(c *fiber.Ctx) error {
	deliveryID := uuid.New().String()
	owner := c.Query(service.OwnerParam)

	var cb model.LipsyncCallback
	if err := json.Unmarshal(c.Body(), &cb); err != nil {
		return response.ValidationError(c, "Invalid callback body", nil)
	}
	if err := h.validator.Struct(&cb); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	log := h.log.With("deliveryId", deliveryID, "owner", owner, "jobId", cb.JobID())
	log.Info("lipsync callback received", "status", cb.Status)

	if err := h.service.HandleLipsyncCallback(c.UserContext(), owner, &cb); err != nil {
		log.Warn("lipsync callback rejected", "error", err)
		return writeServiceError(c, err)
	}

	return response.OK(c, model.WebhookAck{Received: true, DeliveryID: deliveryID})
}

// Captions handles POST /webhooks/captions
// @Summary      Caption renderer callback
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Param        uid query string true "Owner ID"
// @Param        request body model.CaptionsCallback true "Callback payload"
// @Success      200 {object} model.WebhookAck
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /webhooks/captions [post]
func (h *WebhookHandler) Captions(c *fiber.Ctx) error {
	deliveryID := uuid.New().String()
	owner := c.Query(service.OwnerParam)

	// fasthttp reuses the request buffer after the handler returns
	raw := append([]byte(nil), c.Body()...)

	var cb model.CaptionsCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return response.ValidationError(c, "Invalid callback body", nil)
	}
	if err := h.validator.Struct(&cb); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	log := h.log.With("deliveryId", deliveryID, "owner", owner, "secondaryJobId", cb.ProjectID)
	log.Info("captions callback received", "status", cb.Status)

	if err := h.service.HandleCaptionsCallback(c.UserContext(), owner, &cb, raw); err != nil {
		log.Warn("captions callback rejected", "error", err)
		return writeServiceError(c, err)
	}

	return response.OK(c, model.WebhookAck{Received: true, DeliveryID: deliveryID})
}
