package app

import (
	"time"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

// --- Queries ---

// GetRegisteredTimerJobs returns the ids of every registered job
func (a *App) GetRegisteredTimerJobs() []int64 {
	return a.registry.IDs()
}

// IsTimerJobRunning returns whether the job has an armed timer
func (a *App) IsTimerJobRunning(id int64) bool {
	return a.scheduler.IsScheduled(id)
}

// IsTimerJobUploading returns whether an upload run of the job is executing
func (a *App) IsTimerJobUploading(id int64) bool {
	dir, ok := a.guard.Direction(id)
	return ok && dir == job.DirectionUpload
}

// IsTimerJobDownloading returns whether a download run of the job is executing
func (a *App) IsTimerJobDownloading(id int64) bool {
	dir, ok := a.guard.Direction(id)
	return ok && dir == job.DirectionDownload
}

// GetLastUploadTime returns when the last successful upload run ended
func (a *App) GetLastUploadTime(id int64) *time.Time {
	rec, ok := a.registry.Record(id)
	if !ok {
		return nil
	}
	return rec.LastUploadAt
}

// GetLastDownloadTime returns when the last successful download run ended
func (a *App) GetLastDownloadTime(id int64) *time.Time {
	rec, ok := a.registry.Record(id)
	if !ok {
		return nil
	}
	return rec.LastDownloadAt
}

// Job returns the definition of a job
func (a *App) Job(id int64) (job.Definition, bool) {
	return a.registry.Get(id)
}

// Jobs returns every job definition ordered by id
func (a *App) Jobs() []job.Definition {
	return a.registry.List()
}

// State returns the full runtime state of a job
func (a *App) State(id int64) (job.RuntimeState, bool) {
	st, ok := a.registry.State(id)
	if !ok {
		return st, false
	}

	st.IsRunningTimer = a.scheduler.IsScheduled(id)
	if next, ok := a.scheduler.NextRun(id); ok {
		st.NextRunAt = &next
	}
	if started, ok := a.guard.StartedAt(id); ok {
		st.IsExecuting = true
		st.ExecutionStartedAt = &started
		st.ExecutingDirection, _ = a.guard.Direction(id)
	}
	return st, true
}

// Subscribe returns a channel of engine events and its cancel function.
// A subscriber that falls behind loses events instead of blocking the engine.
func (a *App) Subscribe(buffer int) (<-chan events.Event, func()) {
	return a.bus.Subscribe(buffer)
}
