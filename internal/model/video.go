package model

import (
	"encoding/json"
	"time"
)

// Finished video hash fields
const (
	VideoFieldID              = "id"
	VideoFieldOwner           = "owner"
	VideoFieldSecondaryJobID  = "secondaryJobId"
	VideoFieldTitle           = "title"
	VideoFieldStatus          = "status"
	VideoFieldResultURL       = "resultUrl"
	VideoFieldDurationSeconds = "durationSeconds"
	VideoFieldCompletedAt     = "completedAt"
	VideoFieldUpdatedAt       = "updatedAt"
	VideoFieldRawPayload      = "rawPayload"
)

// FinishedVideo is the denormalized record of a captioned video, keyed by
// the job id and read by listing views.
type FinishedVideo struct {
	ID              string          `json:"id"`
	Owner           string          `json:"owner"`
	SecondaryJobID  string          `json:"secondaryJobId"`
	Title           string          `json:"title,omitempty"`
	Status          Status          `json:"status"`
	ResultURL       string          `json:"resultUrl,omitempty"`
	DurationSeconds *float64        `json:"durationSeconds,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
}

func (v *FinishedVideo) Patch() JobPatch {
	p := JobPatch{}
	p.SetString(VideoFieldID, v.ID)
	p.SetString(VideoFieldOwner, v.Owner)
	p.SetString(VideoFieldSecondaryJobID, v.SecondaryJobID)
	p.SetString(VideoFieldTitle, v.Title)
	p.SetString(VideoFieldStatus, v.Status.String())
	p.SetString(VideoFieldResultURL, v.ResultURL)
	p.SetFloat(VideoFieldDurationSeconds, v.DurationSeconds)
	p.SetTime(VideoFieldCompletedAt, v.CompletedAt)
	p.SetTime(VideoFieldUpdatedAt, &v.UpdatedAt)
	if len(v.RawPayload) > 0 {
		p[VideoFieldRawPayload] = string(v.RawPayload)
	}
	return p
}

// FinishedVideoFromHash decodes a finished video hash.
func FinishedVideoFromHash(h map[string]string) (*FinishedVideo, error) {
	v := &FinishedVideo{
		ID:             h[VideoFieldID],
		Owner:          h[VideoFieldOwner],
		SecondaryJobID: h[VideoFieldSecondaryJobID],
		Title:          h[VideoFieldTitle],
		Status:         ParseStatus(h[VideoFieldStatus]),
		ResultURL:      h[VideoFieldResultURL],
	}
	if raw := h[VideoFieldRawPayload]; raw != "" {
		v.RawPayload = json.RawMessage(raw)
	}

	var err error
	if v.DurationSeconds, err = parseFloat(h, VideoFieldDurationSeconds); err != nil {
		return nil, err
	}
	if v.CompletedAt, err = parseTime(h, VideoFieldCompletedAt); err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(h, VideoFieldUpdatedAt)
	if err != nil {
		return nil, err
	}
	if updatedAt != nil {
		v.UpdatedAt = *updatedAt
	}
	return v, nil
}
