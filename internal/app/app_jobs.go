package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/scheduler"
)

// --- Timer Jobs Management ---

// RegisterTimerJob validates and stores a new job. An enabled job gets its
// timer armed right away.
func (a *App) RegisterTimerJob(def job.Definition) (int64, error) {
	id, err := a.registry.Register(def)
	if err != nil {
		return 0, err
	}

	if def.Enabled && !a.offline {
		if err := a.scheduler.Start(id); err != nil {
			a.logger.Error("Failed to schedule new job", zap.Int64("job_id", id), zap.Error(err))
		}
	}
	a.logger.Info("Added timer job", zap.Int64("job_id", id), zap.String("name", def.Name))
	a.publishState(id)
	return id, nil
}

// StartTimerJob arms the timer of a registered job
func (a *App) StartTimerJob(id int64) error {
	if a.offline {
		return errOffline
	}
	if err := a.scheduler.Start(id); err != nil {
		return err
	}
	a.publishState(id)
	return nil
}

// StopTimerJob disarms the timer of a job. A run in progress finishes.
func (a *App) StopTimerJob(id int64) bool {
	if !a.scheduler.Stop(id) {
		return false
	}
	a.publishState(id)
	return true
}

// UpdateTimerJob replaces the definition of a job. A scheduled job is
// re-armed with the new interval, or stopped when it is now disabled.
func (a *App) UpdateTimerJob(id int64, def job.Definition) (bool, error) {
	ok, err := a.registry.Update(id, def)
	if !ok || err != nil {
		return ok, err
	}
	if err := a.scheduler.Reschedule(id); err != nil {
		a.logger.Error("Failed to reschedule job", zap.Int64("job_id", id), zap.Error(err))
	}
	a.logger.Info("Updated timer job", zap.Int64("job_id", id), zap.String("name", def.Name))
	a.publishState(id)
	return true, nil
}

// RemoveTimerJob disarms and deletes a job. When a run is in progress the
// job is hidden at once and purged when that run ends.
func (a *App) RemoveTimerJob(id int64) bool {
	a.scheduler.Stop(id)
	if !a.registry.MarkForRemoval(id) {
		return false
	}
	// Holding the slot keeps a run from being admitted while the entry goes.
	tok, err := a.guard.TryEnter(id, "")
	if err != nil {
		a.logger.Info("Timer job removal deferred until its run ends", zap.Int64("job_id", id))
		return true
	}
	a.registry.Remove(id)
	a.guard.Exit(tok, nil)
	a.logger.Info("Deleted timer job", zap.Int64("job_id", id))
	return true
}

// RunNow triggers a run outside the timer. It returns scheduler.ErrBusy
// when the job is already executing.
func (a *App) RunNow(id int64) error {
	err := a.scheduler.TriggerNow(id)
	if errors.Is(err, scheduler.ErrBusy) {
		a.logger.Debug("Run skipped (already running)", zap.Int64("job_id", id))
	}
	return err
}

// RunSync runs a job on the calling goroutine and returns its summary
func (a *App) RunSync(ctx context.Context, id int64) (*job.RunSummary, error) {
	return a.scheduler.RunSync(ctx, id)
}

// SaveTimerJobsState forces an immediate write of every job
func (a *App) SaveTimerJobsState() error {
	if err := a.registry.Flush(); err != nil {
		a.logger.Error("Failed to save timer jobs state", zap.Error(err))
		return err
	}
	return nil
}
