// Package job defines transfer job definitions, their runtime state and run summaries.
package job

import (
	"fmt"
	"time"
)

// Direction defines which side of a job is the source
type Direction string

const (
	// DirectionUpload transfers local files to the remote endpoint
	DirectionUpload Direction = "upload"
	// DirectionDownload transfers remote files to the local filesystem
	DirectionDownload Direction = "download"
)

// IsValid returns true if the direction is known
func (d Direction) IsValid() bool {
	return d == DirectionUpload || d == DirectionDownload
}

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// IntervalUnit is the unit of a job's interval value
type IntervalUnit string

const (
	UnitSeconds IntervalUnit = "seconds"
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
)

// Duration returns the length of one unit, or 0 if the unit is unknown
func (u IntervalUnit) Duration() time.Duration {
	switch u {
	case UnitSeconds:
		return time.Second
	case UnitMinutes:
		return time.Minute
	case UnitHours:
		return time.Hour
	default:
		return 0
	}
}

// Status is the outcome of the last run of a job
type Status string

const (
	StatusNeverRun Status = "never_run"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusPartial  Status = "partial"
)

// IsValid returns true if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusNeverRun, StatusSuccess, StatusFailed, StatusPartial:
		return true
	default:
		return false
	}
}

// FilterConfig selects which files of the source a job transfers.
type FilterConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	IncludeExtensions []string `json:"include_extensions,omitempty" yaml:"include_extensions,omitempty"`
	ExcludeExtensions []string `json:"exclude_extensions,omitempty" yaml:"exclude_extensions,omitempty"`
	ExcludePatterns   []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`
	MinSizeBytes      int64    `json:"min_size_bytes,omitempty" yaml:"min_size_bytes,omitempty"` // 0 = no lower bound
	MaxSizeBytes      int64    `json:"max_size_bytes,omitempty" yaml:"max_size_bytes,omitempty"` // 0 = no upper bound
	SkipHidden        bool     `json:"skip_hidden,omitempty" yaml:"skip_hidden,omitempty"`
	SkipSystem        bool     `json:"skip_system,omitempty" yaml:"skip_system,omitempty"`
	SkipReadOnly      bool     `json:"skip_read_only,omitempty" yaml:"skip_read_only,omitempty"`
}

// Definition is the user-configured description of a transfer job.
// For uploads SourcePath is local and DestinationPath remote; downloads are the reverse.
type Definition struct {
	ID                        int64        `json:"id" yaml:"id,omitempty"`
	Name                      string       `json:"name" yaml:"name"`
	Direction                 Direction    `json:"direction" yaml:"direction"`
	Connection                string       `json:"connection,omitempty" yaml:"connection,omitempty"`
	SourcePath                string       `json:"source_path" yaml:"source_path"`
	DestinationPath           string       `json:"destination_path" yaml:"destination_path"`
	IntervalValue             int          `json:"interval_value" yaml:"interval_value"`
	IntervalUnit              IntervalUnit `json:"interval_unit" yaml:"interval_unit"`
	IncludeSubfolders         bool         `json:"include_subfolders" yaml:"include_subfolders"`
	DeleteSourceAfterTransfer bool         `json:"delete_source_after_transfer" yaml:"delete_source_after_transfer"`
	Filter                    FilterConfig `json:"filter" yaml:"filter"`
	RunOnStartup              bool         `json:"run_on_startup" yaml:"run_on_startup"`
	MaxRetries                int          `json:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds         int          `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	Enabled                   bool         `json:"enabled" yaml:"enabled"`
}

// Interval returns the job period, or 0 when the definition is invalid
func (d *Definition) Interval() time.Duration {
	if d.IntervalValue <= 0 {
		return 0
	}
	return time.Duration(d.IntervalValue) * d.IntervalUnit.Duration()
}

// RetryDelay returns the fixed delay between retry attempts
func (d *Definition) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelaySeconds) * time.Second
}

// String returns a short description used in logs
func (d *Definition) String() string {
	return fmt.Sprintf("%s (#%d, %s every %d %s)", d.Name, d.ID, d.Direction, d.IntervalValue, d.IntervalUnit)
}

// Stats are cumulative counters kept across runs
type Stats struct {
	TotalRuns  int64 `json:"total_runs"`
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}

// RuntimeState is the observable state of a job.
// IsExecuting implies ExecutionStartedAt is set.
type RuntimeState struct {
	JobID                   int64       `json:"job_id"`
	IsRunningTimer          bool        `json:"is_running_timer"`
	IsExecuting             bool        `json:"is_executing"`
	ExecutionStartedAt      *time.Time  `json:"execution_started_at,omitempty"`
	ExecutingDirection      Direction   `json:"executing_direction,omitempty"`
	NextRunAt               *time.Time  `json:"next_run_at,omitempty"`
	LastRunAt               *time.Time  `json:"last_run_at,omitempty"`
	LastStatus              Status      `json:"last_status"`
	ConsecutiveFailureCount int         `json:"consecutive_failure_count"`
	LastUploadAt            *time.Time  `json:"last_upload_at,omitempty"`
	LastDownloadAt          *time.Time  `json:"last_download_at,omitempty"`
	PendingRemoval          bool        `json:"pending_removal,omitempty"`
	Stats                   Stats       `json:"stats"`
	LastSummary             *RunSummary `json:"last_summary,omitempty"`
}

// Record is the persisted unit of a job: its definition and durable state.
type Record struct {
	Definition          Definition `json:"definition"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	LastStatus          Status     `json:"last_status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastUploadAt        *time.Time `json:"last_upload_at,omitempty"`
	LastDownloadAt      *time.Time `json:"last_download_at,omitempty"`
	Stats               Stats      `json:"stats"`
}

// NewRecord returns a record for a job that never ran
func NewRecord(def Definition) Record {
	return Record{Definition: def, LastStatus: StatusNeverRun}
}
