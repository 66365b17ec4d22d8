package model

import "strings"

// StatusKind classifies a provider-reported status string
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a provider status. Raw keeps the lower-cased provider string so
// values outside the known set survive a round trip through the store.
type Status struct {
	Kind StatusKind
	Raw  string
}

// ProcessingStatus is the status a job is created with.
var ProcessingStatus = Status{Kind: StatusProcessing, Raw: "processing"}

// ParseStatus normalizes a provider status string.
func ParseStatus(raw string) Status {
	norm := strings.ToLower(strings.TrimSpace(raw))
	s := Status{Kind: StatusUnknown, Raw: norm}

	switch norm {
	case "processing", "pending", "queued", "in_progress", "running":
		s.Kind = StatusProcessing
	case "completed":
		s.Kind = StatusCompleted
	case "failed", "error", "rejected", "canceled", "cancelled":
		s.Kind = StatusFailed
	}
	return s
}

func (s Status) String() string {
	if s.Raw == "" {
		return StatusUnknown.String()
	}
	return s.Raw
}

// IsCompleted reports whether the provider finished successfully.
func (s Status) IsCompleted() bool {
	return s.Kind == StatusCompleted
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusFailed
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}
