// Package scheduler arms one timer per job, admits runs through the
// execution guard and dispatches them to a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/metrics"
)

var (
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("job not found")
	// ErrJobDisabled is returned when starting a disabled job
	ErrJobDisabled = errors.New("job is disabled")
	// ErrClosed is returned once the scheduler is closed
	ErrClosed = errors.New("scheduler is closed")
)

// JobSource gives the scheduler the current record of a job
type JobSource interface {
	Record(id int64) (job.Record, bool)
}

// Runner executes one run of a job
type Runner interface {
	Run(ctx context.Context, def job.Definition) *job.RunSummary
}

// entry is the armed timer of a job. gen distinguishes successive
// Start calls so a timer that fires after Stop is ignored.
type entry struct {
	timer    *time.Timer
	next     time.Time
	interval time.Duration
	gen      uint64
}

// Scheduler manages the timers of all jobs.
type Scheduler struct {
	source    JobSource
	runner    Runner
	guard     *Guard
	pool      *WorkerPool
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry
	gen     uint64
	closed  bool
}

// New creates a scheduler. publisher may be nil.
func New(source JobSource, runner Runner, guard *Guard, pool *WorkerPool, publisher events.Publisher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	if pool == nil {
		pool = NewWorkerPool(DefaultWorkers, logger)
	}
	return &Scheduler{
		source:    source,
		runner:    runner,
		guard:     guard,
		pool:      pool,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "scheduler")),
		now:       time.Now,
		entries:   make(map[int64]*entry),
	}
}

// Guard returns the execution guard shared by scheduled and manual runs
func (s *Scheduler) Guard() *Guard {
	return s.guard
}

// Start arms the timer of a job. The first fire is computed from the
// job's last run, so missed ticks collapse into one. Starting a
// scheduled job re-arms it.
func (s *Scheduler) Start(id int64) error {
	rec, ok := s.source.Record(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	def := rec.Definition
	if !def.Enabled {
		return fmt.Errorf("%w: %s", ErrJobDisabled, def.Name)
	}

	var lastRun time.Time
	if rec.LastRunAt != nil {
		lastRun = *rec.LastRunAt
	}
	interval := def.Interval()
	now := s.now()
	next, err := NextRunTime(lastRun, time.Time{}, interval, now)
	if err != nil {
		return fmt.Errorf("job %s: %w", def.Name, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if old, ok := s.entries[id]; ok {
		old.timer.Stop()
	}
	s.gen++
	e := &entry{next: next, interval: interval, gen: s.gen}
	e.timer = time.AfterFunc(next.Sub(now), s.fireFunc(id, e.gen))
	s.entries[id] = e
	count := len(s.entries)
	s.mu.Unlock()

	metrics.ScheduledJobs.Set(float64(count))
	s.logger.Info("job scheduled",
		zap.Int64("job_id", id),
		zap.String("name", def.Name),
		zap.Duration("interval", interval),
		zap.Time("next_run", next))
	s.publisher.Publish(events.Event{Type: events.TimerStarted, JobID: id, NextRun: &next})
	return nil
}

// Stop disarms the timer of a job. A run in progress is not interrupted.
// It returns false if the job was not scheduled.
func (s *Scheduler) Stop(id int64) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		e.timer.Stop()
		delete(s.entries, id)
	}
	count := len(s.entries)
	s.mu.Unlock()

	if !ok {
		return false
	}
	metrics.ScheduledJobs.Set(float64(count))
	s.logger.Info("job unscheduled", zap.Int64("job_id", id))
	s.publisher.Publish(events.Event{Type: events.TimerStopped, JobID: id})
	return true
}

// Reschedule re-arms a scheduled job after its definition changed, or
// stops it when it is now disabled. Unscheduled jobs are left alone.
func (s *Scheduler) Reschedule(id int64) error {
	if !s.IsScheduled(id) {
		return nil
	}
	rec, ok := s.source.Record(id)
	if !ok || !rec.Definition.Enabled {
		s.Stop(id)
		return nil
	}
	return s.Start(id)
}

// IsScheduled reports whether the job has an armed timer
func (s *Scheduler) IsScheduled(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// NextRun returns the next fire time of a scheduled job
func (s *Scheduler) NextRun(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.next, true
	}
	return time.Time{}, false
}

// ScheduledCount returns the number of armed timers
func (s *Scheduler) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TriggerNow runs a job immediately on the pool, outside its timer.
// It returns ErrBusy if the job is already executing.
func (s *Scheduler) TriggerNow(id int64) error {
	rec, ok := s.source.Record(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	tok, err := s.guard.TryEnter(id, rec.Definition.Direction)
	if err != nil {
		return err
	}
	// the job may have been removed between the lookup and TryEnter
	if rec, ok = s.source.Record(id); !ok {
		s.guard.Exit(tok, nil)
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	s.logger.Info("manual run triggered", zap.Int64("job_id", id), zap.String("name", rec.Definition.Name))
	if !s.dispatch(tok, rec.Definition) {
		return ErrClosed
	}
	return nil
}

// RunSync runs a job on the calling goroutine and returns its summary
func (s *Scheduler) RunSync(ctx context.Context, id int64) (*job.RunSummary, error) {
	rec, ok := s.source.Record(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	tok, err := s.guard.TryEnter(id, rec.Definition.Direction)
	if err != nil {
		return nil, err
	}
	if rec, ok = s.source.Record(id); !ok {
		s.guard.Exit(tok, nil)
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return s.guard.Execute(ctx, tok, rec.Definition, s.runner.Run), nil
}

// Close disarms every timer and waits for in-flight runs until ctx ends
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()

	metrics.ScheduledJobs.Set(0)
	s.logger.Info("scheduler stopping", zap.Int("executing", s.guard.Active()))
	return s.pool.Stop(ctx)
}

func (s *Scheduler) fireFunc(id int64, gen uint64) func() {
	return func() { s.fire(id, gen) }
}

// fire handles a timer expiry. It only does bookkeeping; the run itself
// goes to the pool.
func (s *Scheduler) fire(id int64, gen uint64) {
	fireTime := s.now()
	if !s.current(id, gen) {
		return
	}

	rec, ok := s.source.Record(id)
	if !ok || !rec.Definition.Enabled {
		s.logger.Info("job gone or disabled, dropping timer", zap.Int64("job_id", id))
		s.drop(id, gen)
		return
	}
	def := rec.Definition
	interval := def.Interval()

	tok, err := s.guard.TryEnter(id, def.Direction)
	if err != nil {
		next := s.now().Add(interval)
		metrics.TicksSkippedTotal.Inc()
		s.logger.Warn("previous run still executing, tick skipped",
			zap.Int64("job_id", id),
			zap.String("name", def.Name),
			zap.Time("next_run", next))
		s.publisher.Publish(events.Event{Type: events.TickSkipped, JobID: id, NextRun: &next})
		s.rearm(id, gen, next)
		return
	}

	// Stop or removal may have raced with TryEnter; with the slot held
	// they can no longer.
	rec, ok = s.source.Record(id)
	if !ok || !rec.Definition.Enabled || !s.current(id, gen) {
		s.guard.Exit(tok, nil)
		s.logger.Info("job stopped or removed before dispatch", zap.Int64("job_id", id))
		s.drop(id, gen)
		return
	}
	def = rec.Definition
	interval = def.Interval()
	s.dispatch(tok, def)

	next, err := NextRunTime(fireTime, time.Time{}, interval, s.now())
	if err != nil {
		s.logger.Error("cannot compute next run", zap.Int64("job_id", id), zap.Error(err))
		s.drop(id, gen)
		return
	}
	s.rearm(id, gen, next)
}

// dispatch hands an admitted run to the pool. The token is released if
// the pool refuses or drops the task.
func (s *Scheduler) dispatch(tok *Token, def job.Definition) bool {
	release := func() { s.guard.Exit(tok, nil) }
	ok := s.pool.Submit(def.Name, func(ctx context.Context) {
		s.guard.Execute(ctx, tok, def, s.runner.Run)
	}, release)
	if !ok {
		release()
		s.logger.Warn("run not dispatched, pool stopped", zap.Int64("job_id", def.ID))
	}
	return ok
}

func (s *Scheduler) current(id int64, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.gen == gen && !s.closed
}

func (s *Scheduler) rearm(id int64, gen uint64, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.gen != gen || s.closed {
		return
	}
	e.next = next
	e.timer = time.AfterFunc(next.Sub(s.now()), s.fireFunc(id, gen))
}

func (s *Scheduler) drop(id int64, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	removed := ok && e.gen == gen
	if removed {
		e.timer.Stop()
		delete(s.entries, id)
	}
	count := len(s.entries)
	s.mu.Unlock()
	if removed {
		metrics.ScheduledJobs.Set(float64(count))
		s.publisher.Publish(events.Event{Type: events.TimerStopped, JobID: id})
	}
}
