package client

import (
	"context"
	"net/http"
	"time"

	"github.com/makeasinger/lipsync/internal/config"
	"github.com/makeasinger/lipsync/internal/logger"
)

// LipsyncRenderer starts lip-sync generations. Completion is reported
// asynchronously to the callback URL.
type LipsyncRenderer interface {
	CreateGeneration(ctx context.Context, req *LipsyncRequest) (*LipsyncResponse, error)
}

// LipsyncClient implements LipsyncRenderer over the renderer's HTTP API
type LipsyncClient struct {
	providerClient
	model string
}

// LipsyncRequest represents the request for a lip-sync generation
type LipsyncRequest struct {
	SourceAudioRef string `json:"sourceAudioRef"`
	SourceVideoRef string `json:"sourceVideoRef"`
	CallbackURL    string `json:"callbackUrl"`
	Model          string `json:"model,omitempty"`
}

// LipsyncResponse carries the provisional job identifier
type LipsyncResponse struct {
	ID     string `json:"id"`
	Model  string `json:"model,omitempty"`
	Status string `json:"status,omitempty"`
}

// NewLipsyncClient creates a new lip-sync renderer client
func NewLipsyncClient(cfg *config.LipsyncConfig, log *logger.Logger) *LipsyncClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LipsyncClient{
		providerClient: providerClient{
			name:       "lipsync",
			httpClient: &http.Client{Timeout: timeout},
			baseURL:    trimBaseURL(cfg.BaseURL),
			authHeader: "x-api-key",
			authValue:  cfg.APIKey,
			log:        log.With("client", "LipsyncClient"),
		},
		model: cfg.Model,
	}
}

// CreateGeneration submits the audio and video sources for rendering
func (c *LipsyncClient) CreateGeneration(ctx context.Context, req *LipsyncRequest) (*LipsyncResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	var result LipsyncResponse
	if err := c.post(ctx, "/v2/generate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *LipsyncClient) IsConfigured() bool {
	return c.authValue != "" && c.baseURL != ""
}
