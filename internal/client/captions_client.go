package client

import (
	"context"
	"net/http"
	"time"

	"github.com/makeasinger/lipsync/internal/config"
	"github.com/makeasinger/lipsync/internal/logger"
)

// CaptionRenderer starts caption projects on a rendered video
type CaptionRenderer interface {
	CreateProject(ctx context.Context, req *CaptionRequest) (*CaptionResponse, error)
}

// CaptionsClient implements CaptionRenderer over the renderer's HTTP API
type CaptionsClient struct {
	providerClient
}

// CaptionRequest represents the request for a caption project
type CaptionRequest struct {
	ResultURL       string `json:"resultUrl"`
	CaptionLanguage string `json:"captionLanguage,omitempty"`
	CaptionTemplate string `json:"captionTemplate,omitempty"`
	CallbackURL     string `json:"callbackUrl"`
}

// CaptionResponse carries the caption renderer's project id
type CaptionResponse struct {
	ID string `json:"id"`
}

// NewCaptionsClient creates a new caption renderer client
func NewCaptionsClient(cfg *config.CaptionsConfig, log *logger.Logger) *CaptionsClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CaptionsClient{
		providerClient: providerClient{
			name:       "captions",
			httpClient: &http.Client{Timeout: timeout},
			baseURL:    trimBaseURL(cfg.BaseURL),
			authHeader: "x-api-key",
			authValue:  cfg.APIKey,
			log:        log.With("client", "CaptionsClient"),
		},
	}
}

// CreateProject submits a rendered video for captioning
func (c *CaptionsClient) CreateProject(ctx context.Context, req *CaptionRequest) (*CaptionResponse, error) {
	var result CaptionResponse
	if err := c.post(ctx, "/v1/projects", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *CaptionsClient) IsConfigured() bool {
	return c.authValue != "" && c.baseURL != ""
}
