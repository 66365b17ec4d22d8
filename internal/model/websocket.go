package model

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// Pipeline stages reported in job updates
const (
	StageLipsync  = "lipsync"
	StageCaptions = "captions"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobUpdate is pushed to subscribers of a job on every transition
type WSJobUpdate struct {
	Type      string   `json:"type"`
	JobID     string   `json:"jobId"`
	Stage     string   `json:"stage"`
	Status    Status   `json:"status"`
	ResultURL string   `json:"resultUrl,omitempty"`
	Error     *WSError `json:"error,omitempty"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
