package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/scheduler"
)

type fakeEngine struct {
	mu      gosync.Mutex
	jobs    map[int64]job.Definition
	timers  map[int64]bool
	nextID  int64
	runErr  error
	saveErr error
	runs    int
	bus     *events.Bus
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		jobs:   make(map[int64]job.Definition),
		timers: make(map[int64]bool),
		nextID: 1,
		bus:    events.NewBus(zap.NewNop()),
	}
}

func (f *fakeEngine) RegisterTimerJob(def job.Definition) (int64, error) {
	if err := def.Check(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	def.ID = f.nextID
	f.nextID++
	f.jobs[def.ID] = def
	f.timers[def.ID] = def.Enabled
	return def.ID, nil
}

func (f *fakeEngine) UpdateTimerJob(id int64, def job.Definition) (bool, error) {
	def.ID = id
	if err := def.Check(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return false, nil
	}
	f.jobs[id] = def
	return true, nil
}

func (f *fakeEngine) RemoveTimerJob(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return false
	}
	delete(f.jobs, id)
	delete(f.timers, id)
	return true
}

func (f *fakeEngine) StartTimerJob(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.jobs[id]
	if !ok {
		return scheduler.ErrJobNotFound
	}
	if !def.Enabled {
		return scheduler.ErrJobDisabled
	}
	f.timers[id] = true
	return nil
}

func (f *fakeEngine) StopTimerJob(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.timers[id]
	f.timers[id] = false
	return was
}

func (f *fakeEngine) RunNow(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return scheduler.ErrJobNotFound
	}
	if f.runErr != nil {
		return f.runErr
	}
	f.runs++
	return nil
}

func (f *fakeEngine) SaveTimerJobsState() error { return f.saveErr }

func (f *fakeEngine) Job(id int64) (job.Definition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.jobs[id]
	return def, ok
}

func (f *fakeEngine) Jobs() []job.Definition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]job.Definition, 0, len(f.jobs))
	for id := int64(1); id < f.nextID; id++ {
		if def, ok := f.jobs[id]; ok {
			out = append(out, def)
		}
	}
	return out
}

func (f *fakeEngine) State(id int64) (job.RuntimeState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return job.RuntimeState{}, false
	}
	return job.RuntimeState{JobID: id, IsRunningTimer: f.timers[id], LastStatus: job.StatusNeverRun}, true
}

func (f *fakeEngine) Subscribe(buffer int) (<-chan events.Event, func()) {
	return f.bus.Subscribe(buffer)
}

func validJob() job.Definition {
	return job.Definition{
		Name:            "photos",
		Enabled:         true,
		Direction:       job.DirectionUpload,
		SourcePath:      "/data/photos",
		DestinationPath: "/backup/photos",
		IntervalValue:   10,
		IntervalUnit:    job.UnitMinutes,
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetJob(t *testing.T) {
	engine := newFakeEngine()
	h := NewServer(engine, zap.NewNop()).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/jobs", validJob())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "photos", created.Job.Name)
	assert.True(t, created.State.IsRunningTimer)

	w = do(t, h, http.MethodGet, "/api/v1/jobs/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.Job.ID)
	assert.Equal(t, job.DirectionUpload, got.Job.Direction)

	w = do(t, h, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCreateJobValidation(t *testing.T) {
	h := NewServer(newFakeEngine(), zap.NewNop()).Handler()

	bad := validJob()
	bad.IntervalValue = 0
	bad.SourcePath = ""
	w := do(t, h, http.MethodPost, "/api/v1/jobs", bad)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeValidation, resp.Code)
	assert.Len(t, resp.Messages, 2)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobNotFoundAndBadID(t *testing.T) {
	h := NewServer(newFakeEngine(), zap.NewNop()).Handler()

	tests := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodGet, "/api/v1/jobs/42", nil, http.StatusNotFound},
		{http.MethodPut, "/api/v1/jobs/42", validJob(), http.StatusNotFound},
		{http.MethodDelete, "/api/v1/jobs/42", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/jobs/42/start", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/jobs/42/stop", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/jobs/42/run", nil, http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/abc", nil, http.StatusBadRequest},
		{http.MethodDelete, "/api/v1/jobs/-1", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUpdateStartStopDelete(t *testing.T) {
	engine := newFakeEngine()
	h := NewServer(engine, zap.NewNop()).Handler()
	_, err := engine.RegisterTimerJob(validJob())
	require.NoError(t, err)

	updated := validJob()
	updated.Name = "renamed"
	w := do(t, h, http.MethodPut, "/api/v1/jobs/1", updated)
	require.Equal(t, http.StatusOK, w.Code)
	var resp JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "renamed", resp.Job.Name)

	w = do(t, h, http.MethodPost, "/api/v1/jobs/1/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.State.IsRunningTimer)

	// stopping twice is fine
	w = do(t, h, http.MethodPost, "/api/v1/jobs/1/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/jobs/1/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.State.IsRunningTimer)

	disabled := validJob()
	disabled.Enabled = false
	w = do(t, h, http.MethodPut, "/api/v1/jobs/1", disabled)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/jobs/1/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodDelete, "/api/v1/jobs/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/jobs/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunJob(t *testing.T) {
	engine := newFakeEngine()
	h := NewServer(engine, zap.NewNop()).Handler()
	_, err := engine.RegisterTimerJob(validJob())
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/api/v1/jobs/1/run", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, engine.runs)

	engine.runErr = scheduler.ErrBusy
	w = do(t, h, http.MethodPost, "/api/v1/jobs/1/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	engine.runErr = scheduler.ErrClosed
	w = do(t, h, http.MethodPost, "/api/v1/jobs/1/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSaveState(t *testing.T) {
	engine := newFakeEngine()
	h := NewServer(engine, zap.NewNop()).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/state/save", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	engine.saveErr = assert.AnError
	w = do(t, h, http.MethodPost, "/api/v1/state/save", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := NewServer(newFakeEngine(), zap.NewNop()).Handler()

	w := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)

	w = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anemone_transfer_")
}

func TestEventsStream(t *testing.T) {
	engine := newFakeEngine()
	defer engine.bus.Close()
	srv := httptest.NewServer(NewServer(engine, zap.NewNop()).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?job_id=7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return engine.bus.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	engine.bus.Publish(events.Event{Type: events.RunStarted, JobID: 3})
	engine.bus.Publish(events.Event{Type: events.RunCompleted, JobID: 7})

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event:"):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	assert.Equal(t, string(events.RunCompleted), eventLine)
	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(dataLine), &ev))
	assert.Equal(t, int64(7), ev.JobID)
}
