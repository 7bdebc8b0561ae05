package models

import "time"

// RunStatus describes the progress of a submission run
type RunStatus struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	Total      int               `json:"total"`
	Processed  int               `json:"processed"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Remaining  int               `json:"remaining"`
	Current    string            `json:"current,omitempty"`
	Waiting    bool              `json:"waiting"`
	Completed  bool              `json:"completed"`
	LastResult *SubmissionResult `json:"last_result,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Services  map[string]interface{} `json:"services"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
