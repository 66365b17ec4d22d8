package e2e

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestRoot(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	if resp.Header.Get(fiber.HeaderXRequestID) == "" {
		t.Error("expected a request id on every response")
	}
	if _, ok := parseJSON(t, resp)["timestamp"]; !ok {
		t.Error("expected 'timestamp' field in response")
	}
}

func TestHealth_ReportsCollaborators(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
	services, ok := body["services"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a services object, got %v", body["services"])
	}

	want := map[string]bool{
		"redis":    true,
		"lipsync":  true,
		"captions": true,
		"sendgrid": true,
		"r2":       false,
		"gateway":  false,
	}
	for name, configured := range want {
		got, ok := services[name].(bool)
		if !ok {
			t.Errorf("services.%s missing", name)
			continue
		}
		if got != configured {
			t.Errorf("services.%s = %v, want %v", name, got, configured)
		}
	}
}

func TestAuthVerify_NoToken(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
	if resp.Header.Get("X-User-Id") != "" {
		t.Error("no identity may be forwarded without a token")
	}
}

func TestAuthVerify_ForwardsIdentity(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("X-User-Id"); got != testUserID {
		t.Errorf("X-User-Id = %q, want %q", got, testUserID)
	}
	if got := resp.Header.Get("X-User-Email"); got != testUserEmail {
		t.Errorf("X-User-Email = %q, want %q", got, testUserEmail)
	}
}
