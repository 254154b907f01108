package database

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

const jobColumns = `id, name, direction, connection, source_path, destination_path,
	interval_value, interval_unit, include_subfolders, delete_source, filter_config,
	run_on_startup, max_retries, retry_delay_seconds, enabled,
	last_run_at, last_status, consecutive_failures, last_upload_at, last_download_at,
	total_runs, total_files, total_bytes, updated_at`

// --- Transfer Jobs ---

// LoadJobs reads every job record. Rows that cannot be decoded are
// skipped and counted rather than failing the whole load.
func (db *DB) LoadJobs() ([]job.Record, int, error) {
	rows, err := db.conn.Query(`SELECT ` + jobColumns + ` FROM transfer_jobs ORDER BY id ASC`)
	if err != nil {
		return nil, 0, fmt.Errorf("query transfer jobs: %w", err)
	}
	defer rows.Close()

	var records []job.Record
	skipped := 0
	for rows.Next() {
		var r JobRow
		err := rows.Scan(
			&r.ID, &r.Name, &r.Direction, &r.Connection, &r.SourcePath, &r.DestinationPath,
			&r.IntervalValue, &r.IntervalUnit, &r.IncludeSubfolders, &r.DeleteSource, &r.FilterConfig,
			&r.RunOnStartup, &r.MaxRetries, &r.RetryDelaySeconds, &r.Enabled,
			&r.LastRunAt, &r.LastStatus, &r.ConsecutiveFailures, &r.LastUploadAt, &r.LastDownloadAt,
			&r.TotalRuns, &r.TotalFiles, &r.TotalBytes, &r.UpdatedAt,
		)
		if err != nil {
			skipped++
			continue
		}

		rec, err := r.Record()
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, skipped, fmt.Errorf("iterate transfer jobs: %w", err)
	}

	return records, skipped, nil
}

// SaveJobs replaces the stored jobs with records and stores nextID,
// in a single transaction.
func (db *DB) SaveJobs(nextID int64, records []job.Record) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM transfer_jobs`); err != nil {
			return fmt.Errorf("clear transfer jobs: %w", err)
		}

		stmt, err := tx.Prepare(`INSERT INTO transfer_jobs (` + jobColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			r, err := NewJobRow(rec)
			if err != nil {
				return err
			}
			_, err = stmt.Exec(
				r.ID, r.Name, r.Direction, r.Connection, r.SourcePath, r.DestinationPath,
				r.IntervalValue, r.IntervalUnit, r.IncludeSubfolders, r.DeleteSource, r.FilterConfig,
				r.RunOnStartup, r.MaxRetries, r.RetryDelaySeconds, r.Enabled,
				r.LastRunAt, r.LastStatus, r.ConsecutiveFailures, r.LastUploadAt, r.LastDownloadAt,
				r.TotalRuns, r.TotalFiles, r.TotalBytes, r.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert job %d: %w", r.ID, err)
			}
		}

		_, err = tx.Exec(`
			INSERT INTO db_metadata (key, value) VALUES ('next_job_id', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, strconv.FormatInt(nextID, 10))
		if err != nil {
			return fmt.Errorf("write next job id: %w", err)
		}
		return nil
	})
}

// NextJobID returns the persisted id counter
func (db *DB) NextJobID() (int64, error) {
	v, err := db.metadata("next_job_id")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid next_job_id %q: %w", v, err)
	}
	return id, nil
}

// CountJobs returns the number of stored jobs
func (db *DB) CountJobs() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM transfer_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transfer jobs: %w", err)
	}
	return n, nil
}
