package model

import "strings"

// LipsyncCallback is the payload the lip-sync renderer posts when a
// generation changes state. Older integrations send the id as projectId.
type LipsyncCallback struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"projectId"`
	Status         string   `json:"status" validate:"required"`
	OutputURL      string   `json:"outputUrl"`
	OutputDuration *float64 `json:"outputDuration"`
	Model          string   `json:"model"`
}

// JobID returns the job identifier from whichever payload shape was sent.
func (c *LipsyncCallback) JobID() string {
	if id := strings.TrimSpace(c.ID); id != "" {
		return id
	}
	return strings.TrimSpace(c.ProjectID)
}

// CaptionsCallback is the payload the caption renderer posts. ProjectID is
// the caption renderer's own identifier, not the job id.
type CaptionsCallback struct {
	ProjectID   string   `json:"projectId" validate:"required"`
	Status      string   `json:"status" validate:"required"`
	Title       string   `json:"title"`
	DownloadURL string   `json:"downloadUrl"`
	Duration    *float64 `json:"duration"`
	CompletedAt string   `json:"completedAt"`
}

// WebhookAck is returned to providers on every accepted delivery
type WebhookAck struct {
	Received   bool   `json:"received"`
	DeliveryID string `json:"deliveryId"`
}
