// Package registry holds the job definitions and their durable state.
// Every mutation is written through to the store.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/metrics"
	"github.com/juste-un-gars/anemone_transfer/internal/scanner"
	"github.com/juste-un-gars/anemone_transfer/internal/store"
)

// ErrJobNotFound is returned for an unknown job id
var ErrJobNotFound = errors.New("job not found")

type entry struct {
	rec            job.Record
	pendingRemoval bool
	lastSummary    *job.RunSummary
}

// Registry is the authoritative set of jobs. Register, Update and Remove
// are linearizable with each other and with store writes.
type Registry struct {
	store     store.Store
	publisher events.Publisher
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[int64]*entry
	nextID  int64
	dirty   bool
}

// New creates an empty registry. publisher may be nil.
func New(st store.Store, publisher events.Publisher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Registry{
		store:     st,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "registry")),
		entries:   make(map[int64]*entry),
		nextID:    1,
	}
}

// Load reads the store and restores its records
func (r *Registry) Load() (restored, skipped int, err error) {
	snap, err := r.store.Load()
	if err != nil {
		return 0, 0, fmt.Errorf("load job store: %w", err)
	}
	restored, skipped = r.Restore(snap)
	return restored, skipped + snap.Skipped, nil
}

// Restore replaces the registry content with snap. Invalid or duplicate
// records are skipped. Nothing is written back to the store.
func (r *Registry) Restore(snap store.Snapshot) (restored, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[int64]*entry, len(snap.Records))
	maxID := int64(0)
	for _, rec := range snap.Records {
		def := rec.Definition
		if def.ID <= 0 {
			skipped++
			r.logger.Warn("skipping stored job without id", zap.String("name", def.Name))
			continue
		}
		if _, dup := r.entries[def.ID]; dup {
			skipped++
			r.logger.Warn("skipping duplicate stored job", zap.Int64("job_id", def.ID))
			continue
		}
		if msgs := def.Validate(); len(msgs) > 0 {
			skipped++
			r.logger.Warn("skipping invalid stored job",
				zap.Int64("job_id", def.ID),
				zap.String("name", def.Name),
				zap.Strings("problems", msgs))
			continue
		}
		if !rec.LastStatus.IsValid() {
			rec.LastStatus = job.StatusNeverRun
		}
		r.entries[def.ID] = &entry{rec: rec}
		if def.ID > maxID {
			maxID = def.ID
		}
		restored++
	}

	r.nextID = snap.NextID
	if r.nextID <= maxID {
		r.nextID = maxID + 1
	}
	if r.nextID < 1 {
		r.nextID = 1
	}
	metrics.RegisteredJobs.Set(float64(len(r.entries)))

	r.logger.Info("jobs restored",
		zap.Int("restored", restored),
		zap.Int("skipped", skipped),
		zap.Int64("next_id", r.nextID))
	return restored, skipped
}

// Register validates def, assigns it a new id and stores it
func (r *Registry) Register(def job.Definition) (int64, error) {
	if err := validate(&def); err != nil {
		return 0, err
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	def.ID = id
	r.entries[id] = &entry{rec: job.NewRecord(def)}
	count := len(r.entries)
	r.saveLocked()
	r.mu.Unlock()

	metrics.RegisteredJobs.Set(float64(count))
	r.logger.Info("job registered", zap.Int64("job_id", id), zap.String("job", def.String()))
	r.publisher.Publish(events.Event{Type: events.JobRegistered, JobID: id})
	return id, nil
}

// Update replaces the definition of job id, keeping its runtime history.
// It returns false if the job does not exist.
func (r *Registry) Update(id int64, def job.Definition) (bool, error) {
	def.ID = id
	if err := validate(&def); err != nil {
		return false, err
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.pendingRemoval {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	e.rec.Definition = def
	r.saveLocked()
	r.mu.Unlock()

	r.logger.Info("job updated", zap.Int64("job_id", id), zap.String("job", def.String()))
	r.publisher.Publish(events.Event{Type: events.JobUpdated, JobID: id})
	return true, nil
}

// MarkForRemoval hides job id from lookups and drops it from the store.
// The entry itself stays until Remove or the end of its current run.
func (r *Registry) MarkForRemoval(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false
	}
	if !e.pendingRemoval {
		e.pendingRemoval = true
		r.saveLocked()
		r.logger.Info("job marked for removal", zap.Int64("job_id", id))
	}
	return true
}

// Remove deletes job id. It returns false if the job does not exist.
func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	_, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		r.saveLocked()
	}
	count := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return false
	}
	metrics.RegisteredJobs.Set(float64(count))
	r.logger.Info("job removed", zap.Int64("job_id", id))
	r.publisher.Publish(events.Event{Type: events.JobRemoved, JobID: id})
	return true
}

// RecordRun stores the outcome of a run. A job waiting for removal is
// purged. Unknown ids are ignored.
func (r *Registry) RecordRun(summary *job.RunSummary) {
	if summary == nil {
		return
	}

	r.mu.Lock()
	e, ok := r.entries[summary.JobID]
	if !ok {
		r.mu.Unlock()
		return
	}

	if e.pendingRemoval {
		r.purgeLocked(summary.JobID)
		return
	}

	applySummary(&e.rec, summary)
	e.lastSummary = summary
	r.saveLocked()
	r.mu.Unlock()
}

// PurgePending deletes job id if it is waiting for removal. It is used
// when a run ends without a summary, e.g. dropped at shutdown.
func (r *Registry) PurgePending(id int64) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || !e.pendingRemoval {
		r.mu.Unlock()
		return false
	}
	r.purgeLocked(id)
	return true
}

// purgeLocked deletes a pending entry and unlocks r.mu
func (r *Registry) purgeLocked(id int64) {
	delete(r.entries, id)
	count := len(r.entries)
	r.saveLocked()
	r.mu.Unlock()

	metrics.RegisteredJobs.Set(float64(count))
	r.logger.Info("job removed after its last run", zap.Int64("job_id", id))
	r.publisher.Publish(events.Event{Type: events.JobRemoved, JobID: id})
}

func applySummary(rec *job.Record, s *job.RunSummary) {
	started := s.StartedAt
	rec.LastRunAt = &started
	rec.LastStatus = s.Status
	if s.Status == job.StatusFailed {
		rec.ConsecutiveFailures++
	} else {
		rec.ConsecutiveFailures = 0
		finished := s.FinishedAt
		switch s.Direction {
		case job.DirectionUpload:
			rec.LastUploadAt = &finished
		case job.DirectionDownload:
			rec.LastDownloadAt = &finished
		}
	}
	rec.Stats.TotalRuns++
	rec.Stats.TotalFiles += int64(s.FilesCompleted)
	rec.Stats.TotalBytes += s.TotalBytes
}

// validate checks the definition and compiles its exclude patterns
func validate(def *job.Definition) error {
	msgs := def.Validate()
	if len(msgs) == 0 {
		msgs = scanner.ValidatePatterns(def.Filter.ExcludePatterns)
	}
	if len(msgs) > 0 {
		return &job.ValidationError{Messages: msgs}
	}
	return nil
}

// Record returns the record of job id. Jobs pending removal are not visible.
func (r *Registry) Record(id int64) (job.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.pendingRemoval {
		return job.Record{}, false
	}
	return e.rec, true
}

// Get returns the definition of job id
func (r *Registry) Get(id int64) (job.Definition, bool) {
	rec, ok := r.Record(id)
	return rec.Definition, ok
}

// List returns the visible definitions ordered by id
func (r *Registry) List() []job.Definition {
	recs := r.Records()
	defs := make([]job.Definition, len(recs))
	for i, rec := range recs {
		defs[i] = rec.Definition
	}
	return defs
}

// State returns the durable part of the runtime state of job id. Timer and
// execution fields are left for the caller to fill in.
func (r *Registry) State(id int64) (job.RuntimeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return job.RuntimeState{}, false
	}
	rec := e.rec
	return job.RuntimeState{
		JobID:                   id,
		LastRunAt:               rec.LastRunAt,
		LastStatus:              rec.LastStatus,
		ConsecutiveFailureCount: rec.ConsecutiveFailures,
		LastUploadAt:            rec.LastUploadAt,
		LastDownloadAt:          rec.LastDownloadAt,
		PendingRemoval:          e.pendingRemoval,
		Stats:                   rec.Stats,
		LastSummary:             e.lastSummary,
	}, true
}

// Snapshot returns what the next save would write
func (r *Registry) Snapshot() store.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// LastSummary returns the summary of the last run recorded in this process
func (r *Registry) LastSummary(id int64) (*job.RunSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.lastSummary == nil {
		return nil, false
	}
	return e.lastSummary, true
}

// IsPendingRemoval reports whether job id waits for its run to end before removal
func (r *Registry) IsPendingRemoval(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return ok && e.pendingRemoval
}

// IDs returns the visible job ids in ascending order
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.entries))
	for id, e := range r.entries {
		if !e.pendingRemoval {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Records returns the visible records ordered by id
func (r *Registry) Records() []job.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visibleLocked()
}

// Flush writes the current state to the store
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

// Dirty reports whether the last save failed
func (r *Registry) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

func (r *Registry) visibleLocked() []job.Record {
	out := make([]job.Record, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.pendingRemoval {
			out = append(out, e.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Definition.ID < out[j].Definition.ID })
	return out
}

func (r *Registry) snapshotLocked() store.Snapshot {
	return store.Snapshot{
		NextID:  r.nextID,
		SavedAt: time.Now(),
		Records: r.visibleLocked(),
	}
}

// saveLocked writes the snapshot. A failure is logged and leaves the
// registry dirty so the next mutation or Flush retries it.
func (r *Registry) saveLocked() error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveAll(r.snapshotLocked()); err != nil {
		if !r.dirty {
			r.logger.Error("failed to save jobs, will retry on next change", zap.Error(err))
		} else {
			r.logger.Warn("failed to save jobs again", zap.Error(err))
		}
		r.dirty = true
		metrics.StoreSaveFailuresTotal.Inc()
		return err
	}
	if r.dirty {
		r.logger.Info("pending job state saved")
	}
	r.dirty = false
	return nil
}
