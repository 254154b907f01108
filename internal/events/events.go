// Package events carries typed notifications from the engine to its
// observers (API stream, CLI, tests).
package events

import (
	"time"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

// Type identifies an event
type Type string

const (
	JobRegistered   Type = "job_registered"
	JobUpdated      Type = "job_updated"
	JobRemoved      Type = "job_removed"
	TimerStarted    Type = "timer_started"
	TimerStopped    Type = "timer_stopped"
	RunStarted      Type = "run_started"
	RunCompleted    Type = "run_completed"
	FileTransferred Type = "file_transferred"
	TickSkipped     Type = "tick_skipped"
	StateChanged    Type = "state_changed"
)

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type    Type                `json:"type"`
	JobID   int64               `json:"job_id"`
	Time    time.Time           `json:"time"`
	NextRun *time.Time          `json:"next_run,omitempty"`
	Summary *job.RunSummary     `json:"summary,omitempty"`
	Result  *job.TransferResult `json:"result,omitempty"`
	State   *job.RuntimeState   `json:"state,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Publisher is implemented by anything that accepts events
type Publisher interface {
	Publish(e Event)
}

// Discard drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
