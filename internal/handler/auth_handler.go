package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/lipsync/internal/auth"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthHandler creates a new auth handler for ForwardAuth verification
func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Verify handles GET /auth/verify, called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token, err := auth.BearerToken(c.Get("Authorization"))
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	principal, err := auth.Resolve(h.verifier, h.jwtSecret, token)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", principal.UserID)
	c.Set("X-User-Email", principal.Email)
	if principal.Name != "" {
		c.Set("X-User-Name", principal.Name)
	}
	return c.SendStatus(fiber.StatusOK)
}
