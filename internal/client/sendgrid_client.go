package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/makeasinger/lipsync/internal/config"
	"github.com/makeasinger/lipsync/internal/logger"
)

// Mailer sends a single templated email and returns the provider's delivery id
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) (string, error)
}

// EmailMessage is the notification contract: recipient, subject and HTML body
type EmailMessage struct {
	To       string
	Subject  string
	HTMLBody string
}

// SendGridClient implements Mailer with the SendGrid v3 mail send API
type SendGridClient struct {
	providerClient
	fromEmail string
	fromName  string
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

// NewSendGridClient creates a new SendGrid mail client
func NewSendGridClient(cfg *config.SendGridConfig, log *logger.Logger) *SendGridClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := trimBaseURL(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	authValue := ""
	if cfg.APIKey != "" {
		authValue = "Bearer " + cfg.APIKey
	}
	return &SendGridClient{
		providerClient: providerClient{
			name:       "sendgrid",
			httpClient: &http.Client{Timeout: timeout},
			baseURL:    baseURL,
			authHeader: "Authorization",
			authValue:  authValue,
			log:        log.With("client", "SendGridClient"),
		},
		fromEmail: strings.TrimSpace(cfg.FromEmail),
		fromName:  strings.TrimSpace(cfg.FromName),
	}
}

// Send delivers msg. SendGrid answers 202 with an empty body and the
// message id in X-Message-Id.
func (c *SendGridClient) Send(ctx context.Context, msg *EmailMessage) (string, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", fmt.Errorf("sendgrid: recipient required")
	}
	if c.fromEmail == "" {
		return "", fmt.Errorf("sendgrid: from email not configured")
	}

	wire := mailSendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: to}}}},
		From:             emailAddress{Email: c.fromEmail, Name: c.fromName},
		Subject:          strings.TrimSpace(msg.Subject),
		Content:          []mailContent{{Type: "text/html", Value: msg.HTMLBody}},
	}

	var messageID string
	err := c.postWithHeaders(ctx, "/v3/mail/send", wire, func(h http.Header) {
		messageID = strings.TrimSpace(h.Get("X-Message-Id"))
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SendGridClient) IsConfigured() bool {
	return c.authValue != "" && c.fromEmail != ""
}
