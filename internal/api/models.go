package api

import "github.com/juste-un-gars/anemone_transfer/internal/job"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Messages []string `json:"messages,omitempty"`
}

// JobResponse combines a definition with its runtime state
type JobResponse struct {
	Job   job.Definition   `json:"job"`
	State job.RuntimeState `json:"state"`
}

// CreateJobResponse is returned by POST /jobs
type CreateJobResponse struct {
	ID int64 `json:"id"`
	JobResponse
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Jobs   int    `json:"jobs"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeInternal       = "INTERNAL_ERROR"
)
