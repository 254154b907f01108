package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

type recordingRecorder struct {
	mu        sync.Mutex
	summaries []*job.RunSummary
	abandoned []int64
	onRecord  func(*job.RunSummary)
}

func (r *recordingRecorder) RunAbandoned(id int64) {
	r.mu.Lock()
	r.abandoned = append(r.abandoned, id)
	r.mu.Unlock()
}

func (r *recordingRecorder) abandonedIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.abandoned...)
}

func (r *recordingRecorder) RecordRun(s *job.RunSummary) {
	if r.onRecord != nil {
		r.onRecord(s)
	}
	r.mu.Lock()
	r.summaries = append(r.summaries, s)
	r.mu.Unlock()
}

func (r *recordingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.summaries)
}

func testDefinition(id int64) job.Definition {
	return job.Definition{
		ID:              id,
		Name:            "job",
		Direction:       job.DirectionUpload,
		SourcePath:      "/src",
		DestinationPath: "/dst",
		IntervalValue:   1,
		IntervalUnit:    job.UnitHours,
		Enabled:         true,
	}
}

func TestGuardAdmitsExactlyOne(t *testing.T) {
	g := NewGuard(nil, nil, zap.NewNop())

	const n = 32
	var admitted, busy atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.TryEnter(1, job.DirectionUpload); err == nil {
				admitted.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrBusy)
				busy.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(n-1), busy.Load())
	assert.True(t, g.IsExecuting(1))
	assert.Equal(t, 1, g.Active())
}

func TestGuardJobsAreIndependent(t *testing.T) {
	g := NewGuard(nil, nil, nil)
	_, err := g.TryEnter(1, job.DirectionUpload)
	require.NoError(t, err)
	_, err = g.TryEnter(2, job.DirectionDownload)
	require.NoError(t, err)

	dir, ok := g.Direction(2)
	assert.True(t, ok)
	assert.Equal(t, job.DirectionDownload, dir)
	_, ok = g.StartedAt(1)
	assert.True(t, ok)
	assert.Equal(t, 2, g.Active())
}

func TestGuardExitIsIdempotent(t *testing.T) {
	rec := &recordingRecorder{}
	g := NewGuard(rec, nil, nil)

	tok, err := g.TryEnter(1, job.DirectionUpload)
	require.NoError(t, err)
	summary := job.NewRunSummary(testDefinition(1), time.Now())

	g.Exit(tok, summary)
	g.Exit(tok, summary)

	assert.False(t, g.IsExecuting(1))
	assert.Equal(t, 1, rec.count())

	// a stale token must not release a newer holder
	tok2, err := g.TryEnter(1, job.DirectionUpload)
	require.NoError(t, err)
	g.Exit(tok, summary)
	assert.True(t, g.IsExecuting(1))
	g.Exit(tok2, nil)
	assert.False(t, g.IsExecuting(1))
}

func TestGuardExitWithoutSummaryReportsAbandoned(t *testing.T) {
	rec := &recordingRecorder{}
	g := NewGuard(rec, nil, nil)

	tok, err := g.TryEnter(3, job.DirectionDownload)
	require.NoError(t, err)
	g.Exit(tok, nil)
	g.Exit(tok, nil)

	assert.False(t, g.IsExecuting(3))
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, []int64{3}, rec.abandonedIDs())
}

func TestGuardReleasesBeforeRecording(t *testing.T) {
	var g *Guard
	var executingDuringRecord atomic.Bool
	rec := &recordingRecorder{onRecord: func(s *job.RunSummary) {
		executingDuringRecord.Store(g.IsExecuting(s.JobID))
	}}
	g = NewGuard(rec, nil, nil)

	_, err := g.Run(context.Background(), testDefinition(4), func(ctx context.Context, def job.Definition) *job.RunSummary {
		return job.NewRunSummary(def, time.Now())
	})
	require.NoError(t, err)
	assert.False(t, executingDuringRecord.Load(), "recorder saw the job still executing")
}

func TestGuardRecoversPanic(t *testing.T) {
	rec := &recordingRecorder{}
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe(8)
	defer cancel()
	g := NewGuard(rec, bus, zap.NewNop())

	summary, err := g.Run(context.Background(), testDefinition(9), func(ctx context.Context, def job.Definition) *job.RunSummary {
		panic("boom")
	})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, job.StatusFailed, summary.Status)
	assert.Contains(t, summary.Error, "boom")
	assert.False(t, g.IsExecuting(9))
	assert.Equal(t, 1, rec.count())

	var types []events.Type
	for len(types) < 2 {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.Equal(t, []events.Type{events.RunStarted, events.RunCompleted}, types)
}

func TestGuardRunBusy(t *testing.T) {
	g := NewGuard(nil, nil, nil)
	_, err := g.TryEnter(3, job.DirectionUpload)
	require.NoError(t, err)

	called := false
	_, err = g.Run(context.Background(), testDefinition(3), func(ctx context.Context, def job.Definition) *job.RunSummary {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, called)
}
