package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/lipsync/internal/auth"
	"github.com/makeasinger/lipsync/internal/model"
	"github.com/makeasinger/lipsync/pkg/response"
)

const (
	localUserID = "userId"
	localEmail  = "email"
	localName   = "name"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // fallback for legacy tokens
}

// NewAuthMiddleware creates a new auth middleware with Zitadel JWKS verification
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// NewAuthMiddlewareWithFallback creates auth middleware with both JWKS and legacy HMAC support
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the bearer token and stores the caller identity in locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.BearerToken(c.Get("Authorization"))
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				return response.Unauthorized(c, "Missing authorization header")
			}
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		principal, err := auth.Resolve(m.verifier, m.jwtSecret, token)
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals(localUserID, principal.UserID)
		c.Locals(localEmail, principal.Email)
		c.Locals(localName, principal.Name)
		return c.Next()
	}
}

// QueryToken moves a token passed as a query parameter into the Authorization
// header. Browsers cannot set headers on a WebSocket handshake.
func QueryToken(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			if token := c.Query(param); token != "" {
				c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
			}
		}
		return c.Next()
	}
}

// GenerateToken creates a legacy JWT token (useful for testing)
func (m *AuthMiddleware) GenerateToken(userID, email string) (string, error) {
	return auth.SignLegacyToken(userID, email, m.jwtSecret, 24*time.Hour)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(localUserID).(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals(localEmail).(string); ok {
		return email
	}
	return ""
}

// GetIdentity returns the authenticated caller
func GetIdentity(c *fiber.Ctx) model.Identity {
	return model.Identity{
		UserID: GetUserID(c),
		Email:  GetUserEmail(c),
	}
}
