package model

import "time"

// Identity is the verified caller as resolved by the auth middleware
type Identity struct {
	UserID string
	Email  string
}

// CreateJobRequest starts a lip-sync job
type CreateJobRequest struct {
	OwnerID         string `json:"ownerId,omitempty"`
	SourceAudioRef  string `json:"sourceAudioRef" validate:"required,max=2048"`
	SourceVideoRef  string `json:"sourceVideoRef" validate:"required,max=2048"`
	CaptionLanguage string `json:"captionLanguage,omitempty" validate:"omitempty,max=16"`
	CaptionTemplate string `json:"captionTemplate,omitempty" validate:"omitempty,max=64"`
	NotifyAddress   string `json:"notifyAddress,omitempty" validate:"omitempty,email"`
}

// CreateJobResponse is returned once the job document exists
type CreateJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    Status    `json:"status"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
