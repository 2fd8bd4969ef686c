// Package trace records the ordered, immutable outcome of a plan run.
package trace

import (
	"encoding/json"
	"time"

	"github.com/effective-security/toolplan/pkg/llmutils"
	"github.com/effective-security/x/values"
)

// Status of a step, or of a whole run when derived by Trace.Status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	// StatusCancelled is a run-level status: the caller gave up before
	// every step reached a terminal state.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a step status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// StepResult is the outcome of one step. Once the step reaches a
// terminal status the result is never mutated again.
type StepResult struct {
	Index  int    `json:"index"`
	Func   string `json:"func"`
	Status Status `json:"status"`
	// Value is set iff the step completed.
	Value json.RawMessage `json:"value,omitempty"`
	// Error and Reason are set iff the step failed.
	Error      string    `json:"error,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Completed reports whether the step produced a value.
func (r *StepResult) Completed() bool {
	return r.Status == StatusCompleted
}

// Failed reports whether the step failed.
func (r *StepResult) Failed() bool {
	return r.Status == StatusFailed
}

// Duration of the step, zero until it finished.
func (r *StepResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Trace is the full record of a plan run. The executor owns it while
// the run is in flight; callers treat it as read-only afterwards.
type Trace struct {
	RunID      string       `json:"run_id"`
	Steps      []StepResult `json:"steps"`
	StartedAt  time.Time    `json:"started_at,omitzero"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
}

// New creates a trace for a run, generating a run ID when none is given.
func New(runID string) *Trace {
	return &Trace{
		RunID: values.StringsCoalesce(runID, NewRunID()),
	}
}

// Step returns the result of the 1-based step index, or nil.
func (t *Trace) Step(index int) *StepResult {
	if index < 1 || index > len(t.Steps) {
		return nil
	}
	return &t.Steps[index-1]
}

// FirstFailed returns the first failed step, or nil when none failed.
func (t *Trace) FirstFailed() *StepResult {
	for i := range t.Steps {
		if t.Steps[i].Failed() {
			return &t.Steps[i]
		}
	}
	return nil
}

// Status derives the run status: Failed when any step failed,
// Cancelled when steps were left short of a terminal state or skipped
// without a failure, Completed otherwise.
func (t *Trace) Status() Status {
	status := StatusCompleted
	for i := range t.Steps {
		switch t.Steps[i].Status {
		case StatusFailed:
			return StatusFailed
		case StatusCompleted:
		default:
			status = StatusCancelled
		}
	}
	return status
}

// Duration of the run, zero until it finished.
func (t *Trace) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

func (t *Trace) String() string {
	return llmutils.ToJSON(t)
}
