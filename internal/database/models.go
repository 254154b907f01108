package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

// JobRow représente une ligne de la table transfer_jobs
type JobRow struct {
	ID                  int64
	Name                string
	Direction           string
	Connection          string
	SourcePath          string
	DestinationPath     string
	IntervalValue       int
	IntervalUnit        string
	IncludeSubfolders   bool
	DeleteSource        bool
	FilterConfig        string // JSON
	RunOnStartup        bool
	MaxRetries          int
	RetryDelaySeconds   int
	Enabled             bool
	LastRunAt           sql.NullInt64 // nanosecondes Unix
	LastStatus          string
	ConsecutiveFailures int
	LastUploadAt        sql.NullInt64
	LastDownloadAt      sql.NullInt64
	TotalRuns           int64
	TotalFiles          int64
	TotalBytes          int64
	UpdatedAt           int64
}

// NewJobRow convertit un enregistrement métier en ligne SQL
func NewJobRow(rec job.Record) (JobRow, error) {
	def := rec.Definition
	filter, err := json.Marshal(def.Filter)
	if err != nil {
		return JobRow{}, fmt.Errorf("encode filter of job %d: %w", def.ID, err)
	}
	return JobRow{
		ID:                  def.ID,
		Name:                def.Name,
		Direction:           string(def.Direction),
		Connection:          def.Connection,
		SourcePath:          def.SourcePath,
		DestinationPath:     def.DestinationPath,
		IntervalValue:       def.IntervalValue,
		IntervalUnit:        string(def.IntervalUnit),
		IncludeSubfolders:   def.IncludeSubfolders,
		DeleteSource:        def.DeleteSourceAfterTransfer,
		FilterConfig:        string(filter),
		RunOnStartup:        def.RunOnStartup,
		MaxRetries:          def.MaxRetries,
		RetryDelaySeconds:   def.RetryDelaySeconds,
		Enabled:             def.Enabled,
		LastRunAt:           toNullTime(rec.LastRunAt),
		LastStatus:          string(rec.LastStatus),
		ConsecutiveFailures: rec.ConsecutiveFailures,
		LastUploadAt:        toNullTime(rec.LastUploadAt),
		LastDownloadAt:      toNullTime(rec.LastDownloadAt),
		TotalRuns:           rec.Stats.TotalRuns,
		TotalFiles:          rec.Stats.TotalFiles,
		TotalBytes:          rec.Stats.TotalBytes,
		UpdatedAt:           time.Now().UnixNano(),
	}, nil
}

// Record reconstruit l'enregistrement métier
func (r JobRow) Record() (job.Record, error) {
	var filter job.FilterConfig
	if r.FilterConfig != "" {
		if err := json.Unmarshal([]byte(r.FilterConfig), &filter); err != nil {
			return job.Record{}, fmt.Errorf("decode filter of job %d: %w", r.ID, err)
		}
	}

	status := job.Status(r.LastStatus)
	if !status.IsValid() {
		status = job.StatusNeverRun
	}

	return job.Record{
		Definition: job.Definition{
			ID:                        r.ID,
			Name:                      r.Name,
			Direction:                 job.Direction(r.Direction),
			Connection:                r.Connection,
			SourcePath:                r.SourcePath,
			DestinationPath:           r.DestinationPath,
			IntervalValue:             r.IntervalValue,
			IntervalUnit:              job.IntervalUnit(r.IntervalUnit),
			IncludeSubfolders:         r.IncludeSubfolders,
			DeleteSourceAfterTransfer: r.DeleteSource,
			Filter:                    filter,
			RunOnStartup:              r.RunOnStartup,
			MaxRetries:                r.MaxRetries,
			RetryDelaySeconds:         r.RetryDelaySeconds,
			Enabled:                   r.Enabled,
		},
		LastRunAt:           fromNullTime(r.LastRunAt),
		LastStatus:          status,
		ConsecutiveFailures: r.ConsecutiveFailures,
		LastUploadAt:        fromNullTime(r.LastUploadAt),
		LastDownloadAt:      fromNullTime(r.LastDownloadAt),
		Stats: job.Stats{
			TotalRuns:  r.TotalRuns,
			TotalFiles: r.TotalFiles,
			TotalBytes: r.TotalBytes,
		},
	}, nil
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
