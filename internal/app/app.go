// Package app wires the transfer engine together and exposes the timer job
// operations used by the API and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/registry"
	"github.com/juste-un-gars/anemone_transfer/internal/scheduler"
	"github.com/juste-un-gars/anemone_transfer/internal/store"
	"github.com/juste-un-gars/anemone_transfer/internal/sync"
)

const (
	AppName    = "AnemoneTransfer"
	AppVersion = "0.1.0-dev"
)

var (
	errAlreadyStarted = errors.New("app already started")
	errShutDown       = errors.New("app is shut down")
	errOffline        = errors.New("app is offline, timers are disabled")
)

// Options holds the collaborators of the App. Store and Factory are required.
type Options struct {
	Store   store.Store
	Factory sync.ClientFactory
	LocalFs afero.Fs
	Logger  *zap.Logger

	// MaxConcurrentRuns bounds the runs executing at once across all jobs
	MaxConcurrentRuns int

	// Bus is created when nil
	Bus *events.Bus

	// Offline loads and edits jobs without arming any timer (one-shot CLI commands)
	Offline bool
}

// App represents the running transfer engine.
type App struct {
	logger *zap.Logger
	bus    *events.Bus
	store  store.Store

	registry     *registry.Registry
	orchestrator *sync.Orchestrator
	guard        *scheduler.Guard
	scheduler    *scheduler.Scheduler

	offline bool

	mu      gosync.Mutex
	started bool
	stopped bool
}

// New creates the App. Nothing is loaded or scheduled until Start.
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("app: a job store is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("app: %w", sync.ErrNoClientFactory)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}

	a := &App{
		logger:  logger.With(zap.String("component", "app")),
		bus:     bus,
		store:   opts.Store,
		offline: opts.Offline,
	}

	a.registry = registry.New(opts.Store, bus, logger)
	a.orchestrator = sync.NewOrchestrator(opts.Factory, opts.LocalFs, logger)
	a.orchestrator.SetObserver(sync.ObserverFunc(a.fileProcessed))
	a.guard = scheduler.NewGuard(a, bus, logger)
	pool := scheduler.NewWorkerPool(opts.MaxConcurrentRuns, logger)
	a.scheduler = scheduler.New(a.registry, a.orchestrator, a.guard, pool, bus, logger)

	return a, nil
}

// Start loads the persisted jobs and arms the timer of every enabled job
// marked RunOnStartup. It must be called once. An offline App only loads.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return errShutDown
	}
	if a.started {
		a.mu.Unlock()
		return errAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	restored, skipped, err := a.registry.Load()
	if err != nil {
		return err
	}
	if a.offline {
		a.logger.Debug("Jobs loaded (offline)", zap.Int("jobs", restored), zap.Int("skipped_records", skipped))
		return nil
	}

	armed := 0
	for _, rec := range a.registry.Records() {
		if err := ctx.Err(); err != nil {
			return err
		}
		def := rec.Definition
		if !def.Enabled || !def.RunOnStartup {
			continue
		}
		if err := a.scheduler.Start(def.ID); err != nil {
			a.logger.Error("Failed to resume job", zap.Int64("job_id", def.ID), zap.String("name", def.Name), zap.Error(err))
			continue
		}
		armed++
		a.publishState(def.ID)
	}

	a.logger.Info("Transfer engine started",
		zap.Int("jobs", restored),
		zap.Int("skipped_records", skipped),
		zap.Int("resumed", armed))
	return nil
}

// Shutdown stops every timer, waits for in-flight runs until ctx ends,
// then flushes the job state and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.mu.Unlock()

	a.logger.Info("Shutting down", zap.Int("executing", a.guard.Active()))

	var errs []error
	if err := a.scheduler.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.registry.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush jobs: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	a.bus.Close()

	if len(errs) > 0 {
		a.logger.Warn("Shutdown completed with errors", zap.Error(errors.Join(errs...)))
		return errors.Join(errs...)
	}
	a.logger.Info("Shutdown complete")
	return nil
}

// RecordRun stores a finished run and notifies subscribers. It is called
// by the execution guard after the job was released.
func (a *App) RecordRun(summary *job.RunSummary) {
	if summary == nil {
		return
	}
	a.registry.RecordRun(summary)
	a.publishState(summary.JobID)
}

// RunAbandoned is called by the execution guard when an admitted run is
// released without executing. A removal waiting on it completes here.
func (a *App) RunAbandoned(id int64) {
	if a.registry.PurgePending(id) {
		a.logger.Info("Pending job removed, its run was abandoned", zap.Int64("job_id", id))
	}
}

func (a *App) fileProcessed(summary *job.RunSummary, result job.TransferResult) {
	a.bus.Publish(events.Event{
		Type:   events.FileTransferred,
		JobID:  summary.JobID,
		Result: &result,
	})
}

func (a *App) publishState(id int64) {
	st, ok := a.State(id)
	if !ok {
		return
	}
	a.bus.Publish(events.Event{Type: events.StateChanged, JobID: id, State: &st})
}
