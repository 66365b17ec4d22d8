package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/lipsync/internal/service"
	"github.com/makeasinger/lipsync/pkg/response"
)

// writeServiceError maps a service error kind onto the response envelope
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return response.ValidationError(c, err.Error(), nil)
	case errors.Is(err, service.ErrUnauthorized):
		return response.Unauthorized(c, "Authentication required")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Owner does not match the authenticated user")
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrUpstream):
		return response.UpstreamError(c, err.Error())
	default:
		return response.ServiceError(c, "Internal error")
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}
