package model

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Job hash fields. Each webhook handler owns a disjoint group of fields;
// status and updatedAt are shared.
const (
	FieldID                       = "id"
	FieldOwner                    = "owner"
	FieldStatus                   = "status"
	FieldSourceAudioRef           = "sourceAudioRef"
	FieldSourceVideoRef           = "sourceVideoRef"
	FieldResultURL                = "resultUrl"
	FieldResultDurationSeconds    = "resultDurationSeconds"
	FieldResultModel              = "resultModel"
	FieldCompletedAt              = "completedAt"
	FieldCreatedAt                = "createdAt"
	FieldUpdatedAt                = "updatedAt"
	FieldSecondaryJobID           = "secondaryJobId"
	FieldSecondaryStatus          = "secondaryStatus"
	FieldSecondaryResultURL       = "secondaryResultUrl"
	FieldSecondaryDurationSeconds = "secondaryDurationSeconds"
	FieldSecondaryCompletedAt     = "secondaryCompletedAt"
	FieldCaptionLanguage          = "captionLanguage"
	FieldCaptionTemplate          = "captionTemplate"
	FieldNotifyAddress            = "notifyAddress"
	FieldChainRequestedAt         = "chainRequestedAt"
	FieldNotifiedAt               = "notifiedAt"
)

// Job is the single mutable document shared by intake and both webhook handlers
type Job struct {
	ID                       string     `json:"id"`
	Owner                    string     `json:"owner"`
	Status                   Status     `json:"status"`
	SourceAudioRef           string     `json:"sourceAudioRef"`
	SourceVideoRef           string     `json:"sourceVideoRef"`
	ResultURL                string     `json:"resultUrl,omitempty"`
	ResultDurationSeconds    *float64   `json:"resultDurationSeconds,omitempty"`
	ResultModel              string     `json:"resultModel,omitempty"`
	CompletedAt              *time.Time `json:"completedAt,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
	SecondaryJobID           string     `json:"secondaryJobId,omitempty"`
	SecondaryStatus          *Status    `json:"secondaryStatus,omitempty"`
	SecondaryResultURL       string     `json:"secondaryResultUrl,omitempty"`
	SecondaryDurationSeconds *float64   `json:"secondaryDurationSeconds,omitempty"`
	SecondaryCompletedAt     *time.Time `json:"secondaryCompletedAt,omitempty"`
	CaptionLanguage          string     `json:"captionLanguage,omitempty"`
	CaptionTemplate          string     `json:"captionTemplate,omitempty"`
	NotifyAddress            string     `json:"notifyAddress,omitempty"`
	ChainRequestedAt         *time.Time `json:"chainRequestedAt,omitempty"`
	NotifiedAt               *time.Time `json:"notifiedAt,omitempty"`
}

// JobPatch is a partial update keyed by hash field. Setters skip empty values
// so a patch never blanks a field it does not carry.
type JobPatch map[string]string

func (p JobPatch) SetString(field, value string) JobPatch {
	if value != "" {
		p[field] = value
	}
	return p
}

func (p JobPatch) SetTime(field string, t *time.Time) JobPatch {
	if t != nil && !t.IsZero() {
		p[field] = FormatTime(*t)
	}
	return p
}

func (p JobPatch) SetFloat(field string, f *float64) JobPatch {
	if f != nil {
		p[field] = strconv.FormatFloat(*f, 'f', -1, 64)
	}
	return p
}

// Args flattens the patch into field/value pairs in field order.
func (p JobPatch) Args() []interface{} {
	fields := make([]string, 0, len(p))
	for f := range p {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	args := make([]interface{}, 0, len(p)*2)
	for _, f := range fields {
		args = append(args, f, p[f])
	}
	return args
}

// Patch encodes the whole job.
func (j *Job) Patch() JobPatch {
	p := JobPatch{}
	p.SetString(FieldID, j.ID)
	p.SetString(FieldOwner, j.Owner)
	p.SetString(FieldStatus, j.Status.String())
	p.SetString(FieldSourceAudioRef, j.SourceAudioRef)
	p.SetString(FieldSourceVideoRef, j.SourceVideoRef)
	p.SetString(FieldResultURL, j.ResultURL)
	p.SetFloat(FieldResultDurationSeconds, j.ResultDurationSeconds)
	p.SetString(FieldResultModel, j.ResultModel)
	p.SetTime(FieldCompletedAt, j.CompletedAt)
	p.SetTime(FieldCreatedAt, &j.CreatedAt)
	p.SetTime(FieldUpdatedAt, &j.UpdatedAt)
	p.SetString(FieldSecondaryJobID, j.SecondaryJobID)
	if j.SecondaryStatus != nil {
		p.SetString(FieldSecondaryStatus, j.SecondaryStatus.String())
	}
	p.SetString(FieldSecondaryResultURL, j.SecondaryResultURL)
	p.SetFloat(FieldSecondaryDurationSeconds, j.SecondaryDurationSeconds)
	p.SetTime(FieldSecondaryCompletedAt, j.SecondaryCompletedAt)
	p.SetString(FieldCaptionLanguage, j.CaptionLanguage)
	p.SetString(FieldCaptionTemplate, j.CaptionTemplate)
	p.SetString(FieldNotifyAddress, j.NotifyAddress)
	p.SetTime(FieldChainRequestedAt, j.ChainRequestedAt)
	p.SetTime(FieldNotifiedAt, j.NotifiedAt)
	return p
}

// JobFromHash decodes a job hash as returned by HGETALL.
func JobFromHash(h map[string]string) (*Job, error) {
	job := &Job{
		ID:                 h[FieldID],
		Owner:              h[FieldOwner],
		Status:             ParseStatus(h[FieldStatus]),
		SourceAudioRef:     h[FieldSourceAudioRef],
		SourceVideoRef:     h[FieldSourceVideoRef],
		ResultURL:          h[FieldResultURL],
		ResultModel:        h[FieldResultModel],
		SecondaryJobID:     h[FieldSecondaryJobID],
		SecondaryResultURL: h[FieldSecondaryResultURL],
		CaptionLanguage:    h[FieldCaptionLanguage],
		CaptionTemplate:    h[FieldCaptionTemplate],
		NotifyAddress:      h[FieldNotifyAddress],
	}

	if raw, ok := h[FieldSecondaryStatus]; ok {
		s := ParseStatus(raw)
		job.SecondaryStatus = &s
	}

	var err error
	if job.ResultDurationSeconds, err = parseFloat(h, FieldResultDurationSeconds); err != nil {
		return nil, err
	}
	if job.SecondaryDurationSeconds, err = parseFloat(h, FieldSecondaryDurationSeconds); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseTime(h, FieldCompletedAt); err != nil {
		return nil, err
	}
	if job.SecondaryCompletedAt, err = parseTime(h, FieldSecondaryCompletedAt); err != nil {
		return nil, err
	}
	if job.ChainRequestedAt, err = parseTime(h, FieldChainRequestedAt); err != nil {
		return nil, err
	}
	if job.NotifiedAt, err = parseTime(h, FieldNotifiedAt); err != nil {
		return nil, err
	}

	createdAt, err := parseTime(h, FieldCreatedAt)
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		job.CreatedAt = *createdAt
	}
	updatedAt, err := parseTime(h, FieldUpdatedAt)
	if err != nil {
		return nil, err
	}
	if updatedAt != nil {
		job.UpdatedAt = *updatedAt
	}

	return job, nil
}

// FormatTime is the timestamp encoding used in stored documents.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(h map[string]string, field string) (*time.Time, error) {
	raw, ok := h[field]
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return &t, nil
}

func parseFloat(h map[string]string, field string) (*float64, error) {
	raw, ok := h[field]
	if !ok || raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return &f, nil
}
