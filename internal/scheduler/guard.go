package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

// ErrBusy is returned by TryEnter when the job is already executing
var ErrBusy = errors.New("job is already executing")

// Recorder persists the outcome of a run. RunAbandoned is called instead
// of RecordRun when an admitted run is released without executing.
type Recorder interface {
	RecordRun(summary *job.RunSummary)
	RunAbandoned(jobID int64)
}

// RunFunc executes one run of a job
type RunFunc func(ctx context.Context, def job.Definition) *job.RunSummary

// Token is held by the single execution of a job admitted by the guard
type Token struct {
	JobID     int64
	Direction job.Direction
	StartedAt time.Time

	released atomic.Bool
}

// Guard admits at most one execution per job at a time. Entering never
// blocks: a second caller gets ErrBusy.
type Guard struct {
	recorder  Recorder
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	active map[int64]*Token
}

// NewGuard creates a guard. recorder and publisher may be nil.
func NewGuard(recorder Recorder, publisher events.Publisher, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Guard{
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "guard")),
		now:       time.Now,
		active:    make(map[int64]*Token),
	}
}

// TryEnter takes the execution slot of jobID
func (g *Guard) TryEnter(jobID int64, direction job.Direction) (*Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[jobID]; busy {
		return nil, ErrBusy
	}
	tok := &Token{JobID: jobID, Direction: direction, StartedAt: g.now()}
	g.active[jobID] = tok
	return tok, nil
}

// Exit releases the slot and records summary. A nil summary means the run
// never executed. Only the first call for a token has an effect.
func (g *Guard) Exit(tok *Token, summary *job.RunSummary) {
	if tok == nil || !tok.released.CompareAndSwap(false, true) {
		return
	}

	// Release before recording: a removal waiting on this run is purged
	// by the recorder and must already see the job as idle.
	g.mu.Lock()
	if g.active[tok.JobID] == tok {
		delete(g.active, tok.JobID)
	}
	g.mu.Unlock()

	if summary == nil {
		if g.recorder != nil {
			g.recorder.RunAbandoned(tok.JobID)
		}
		return
	}
	if g.recorder != nil {
		g.recorder.RecordRun(summary)
	}
	g.publisher.Publish(events.Event{
		Type:    events.RunCompleted,
		JobID:   tok.JobID,
		Summary: summary,
	})
}

// Execute runs def while holding tok and always releases it, including
// when run panics. A panic is converted into a failed summary.
func (g *Guard) Execute(ctx context.Context, tok *Token, def job.Definition, run RunFunc) (summary *job.RunSummary) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("run panicked",
				zap.Int64("job_id", def.ID),
				zap.String("job", def.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			summary = job.NewRunSummary(def, tok.StartedAt)
			summary.Fail(fmt.Errorf("panic: %v", r))
			summary.Finalize(g.now())
		}
		g.Exit(tok, summary)
	}()

	g.publisher.Publish(events.Event{Type: events.RunStarted, JobID: def.ID})
	return run(ctx, def)
}

// Run enters, executes and exits in one call
func (g *Guard) Run(ctx context.Context, def job.Definition, run RunFunc) (*job.RunSummary, error) {
	tok, err := g.TryEnter(def.ID, def.Direction)
	if err != nil {
		return nil, err
	}
	return g.Execute(ctx, tok, def, run), nil
}

// IsExecuting reports whether jobID holds the slot
func (g *Guard) IsExecuting(jobID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[jobID]
	return ok
}

// Direction returns the direction of the active execution of jobID
func (g *Guard) Direction(jobID int64) (job.Direction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tok, ok := g.active[jobID]; ok {
		return tok.Direction, true
	}
	return "", false
}

// StartedAt returns when the active execution of jobID started
func (g *Guard) StartedAt(jobID int64) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tok, ok := g.active[jobID]; ok {
		return tok.StartedAt, true
	}
	return time.Time{}, false
}

// Active returns the number of executing jobs
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
