package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestAuthenticateLegacyToken(t *testing.T) {
	m := NewLegacyAuthMiddleware("secret")
	app := fiber.New()
	app.Get("/me", m.Authenticate(), func(c *fiber.Ctx) error {
		id := GetIdentity(c)
		return c.JSON(fiber.Map{"userId": id.UserID, "email": id.Email})
	})

	token, err := m.GenerateToken("u1", "u1@example.com")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without headers, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-Id", "u1")
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with gateway headers, got %d", resp.StatusCode)
	}
}
