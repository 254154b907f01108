package job

import (
	"time"

	"github.com/google/uuid"
)

// TransferResult is the outcome of transferring a single file
type TransferResult struct {
	Path             string `json:"path"`
	DestinationPath  string `json:"destination_path"`
	Success          bool   `json:"success"`
	BytesTransferred int64  `json:"bytes_transferred"`
	Attempts         int    `json:"attempts"`
	Error            string `json:"error,omitempty"`

	// Source deletion after a successful transfer. A failed delete does
	// not change Success.
	SourceDeleted bool   `json:"source_deleted,omitempty"`
	DeleteError   string `json:"delete_error,omitempty"`
}

// RunSummary contains the result of one execution of a job
type RunSummary struct {
	RunID     uuid.UUID `json:"run_id"`
	JobID     int64     `json:"job_id"`
	JobName   string    `json:"job_name"`
	Direction Direction `json:"direction"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	FilesMatched   int     `json:"files_matched"`
	FilesCompleted int     `json:"files_completed"`
	FilesFailed    int     `json:"files_failed"`
	FilesSkipped   int     `json:"files_skipped"` // did not match the filter
	TotalBytes     int64   `json:"total_bytes"`
	AverageSpeed   float64 `json:"average_speed"` // bytes per second

	Status Status `json:"status"`

	// Error is set when the run stopped early: a connection or enumeration
	// failure before any file, or a cancellation. Files completed before a
	// cancellation still count, so such a run can be partial.
	Error string `json:"error,omitempty"`

	Results []TransferResult `json:"results,omitempty"`
}

// NewRunSummary creates a summary for a run of def starting at startedAt
func NewRunSummary(def Definition, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     uuid.New(),
		JobID:     def.ID,
		JobName:   def.Name,
		Direction: def.Direction,
		StartedAt: startedAt,
		Status:    StatusNeverRun,
		Results:   make([]TransferResult, 0),
	}
}

// AddResult records the outcome of one matched file
func (s *RunSummary) AddResult(r TransferResult) {
	s.Results = append(s.Results, r)
	s.FilesMatched++
	if r.Success {
		s.FilesCompleted++
		s.TotalBytes += r.BytesTransferred
	} else {
		s.FilesFailed++
	}
}

// Fail marks the run as failed before any file was attempted
func (s *RunSummary) Fail(err error) {
	if err != nil {
		s.Error = err.Error()
	}
}

// Finalize sets the end time, duration, speed and overall status.
func (s *RunSummary) Finalize(finishedAt time.Time) {
	s.FinishedAt = finishedAt
	s.Duration = finishedAt.Sub(s.StartedAt)
	if s.Duration < 0 {
		s.Duration = 0
	}

	if secs := s.Duration.Seconds(); secs > 0 {
		s.AverageSpeed = float64(s.TotalBytes) / secs
	} else {
		s.AverageSpeed = 0
	}

	switch {
	case s.Error != "" && s.FilesCompleted == 0:
		s.Status = StatusFailed
	case s.Error != "":
		s.Status = StatusPartial
	case s.FilesFailed == 0:
		s.Status = StatusSuccess
	case s.FilesCompleted > 0:
		s.Status = StatusPartial
	default:
		s.Status = StatusFailed
	}
}
