package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/lipsync/internal/auth"
	"github.com/makeasinger/lipsync/internal/client"
	"github.com/makeasinger/lipsync/internal/config"
	"github.com/makeasinger/lipsync/internal/handler"
	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/middleware"
	"github.com/makeasinger/lipsync/internal/server"
	"github.com/makeasinger/lipsync/internal/service"
	"github.com/makeasinger/lipsync/internal/store"
	ws "github.com/makeasinger/lipsync/internal/websocket"
)

const (
	testJWTSecret     = "test-secret-for-e2e"
	testWebhookSecret = "test-webhook-secret"
	testUserID        = "test-user-123"
	testUserEmail     = "test@example.com"
)

// providerStub records requests made to one fake provider
type providerStub struct {
	mu       sync.Mutex
	requests []map[string]interface{}
	srv      *httptest.Server
}

func newProviderStub(t *testing.T, status int, body string, headers map[string]string) *providerStub {
	t.Helper()
	p := &providerStub{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		p.mu.Lock()
		p.requests = append(p.requests, payload)
		p.mu.Unlock()
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *providerStub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *providerStub) last() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	store    *store.JobStore
	lipsync  *providerStub
	captions *providerStub
	sendgrid *providerStub
}

// setupApp builds the same app as main.go against miniredis and stub
// providers. Side effects run inline.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	ta := &testApp{
		store:    store.NewJobStore(redisClient),
		lipsync:  newProviderStub(t, http.StatusOK, `{"id":"gen-1","status":"PENDING","model":"lipsync-2"}`, nil),
		captions: newProviderStub(t, http.StatusOK, `{"id":"cap-1"}`, nil),
		sendgrid: newProviderStub(t, http.StatusAccepted, "", map[string]string{"X-Message-Id": "sg-1"}),
	}

	log := logger.Nop()
	validate := validator.New()

	lipsyncClient := client.NewLipsyncClient(&config.LipsyncConfig{APIKey: "k", BaseURL: ta.lipsync.srv.URL}, log)
	captionsClient := client.NewCaptionsClient(&config.CaptionsConfig{APIKey: "k", BaseURL: ta.captions.srv.URL}, log)
	mailer := client.NewSendGridClient(&config.SendGridConfig{APIKey: "k", BaseURL: ta.sendgrid.srv.URL, FromEmail: "noreply@example.com"}, log)

	pipeline := service.NewPipelineService(
		ta.store,
		lipsyncClient,
		captionsClient,
		mailer,
		log,
		service.PipelineConfig{PublicURL: "https://api.example.com"},
	)

	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	ta.app = server.NewApp(server.Deps{
		Log:            log,
		Authenticate:   middleware.NewLegacyAuthMiddleware(testJWTSecret).Authenticate(),
		JobsRateLimit:  rateLimiter.JobsLimit(10000),
		Jobs:           handler.NewJobHandler(pipeline, validate, log),
		Webhooks:       handler.NewWebhookHandler(pipeline, validate, log),
		Auth:           handler.NewAuthHandler(nil, testJWTSecret),
		Hub:            ws.NewHub(log),
		LipsyncSecret:  "",
		CaptionsSecret: testWebhookSecret,
		Services: map[string]bool{
			"redis":    true,
			"lipsync":  lipsyncClient.IsConfigured(),
			"captions": captionsClient.IsConfigured(),
			"sendgrid": mailer.IsConfigured(),
			"r2":       false,
			"jwks":     false,
			"gateway":  false,
		},
	})

	return ta
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	return tokenFor(t, testUserID, testUserEmail)
}

func tokenFor(t *testing.T, userID, email string) string {
	t.Helper()
	signed, err := auth.SignLegacyToken(userID, email, testJWTSecret, 0)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}
