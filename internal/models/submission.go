package models

import (
	"fmt"
	"time"
)

// FailedMarker replaces the request id of an object whose attempts were exhausted
const FailedMarker = "FAILED"

// SubmissionResult is the outcome of one object's request submission
type SubmissionResult struct {
	ObjectID   string    `json:"object_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Failed     bool      `json:"failed"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// String renders the result line appended to the result file
func (r SubmissionResult) String() string {
	requestID := r.RequestID
	if r.Failed || requestID == "" {
		requestID = FailedMarker
	}
	return fmt.Sprintf("%s → %s", r.ObjectID, requestID)
}
