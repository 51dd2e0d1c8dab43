package model

import "time"

// Refresh step names, in execution order.
const (
	StepTokens = "token_metadata"
	StepFarms  = "farms"
	StepPools  = "pools"
)

// StepStatus is the outcome of one refresh step.
type StepStatus string

const (
	StepCommitted StepStatus = "committed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepEmpty     StepStatus = "empty"
)

// StepReport describes one refresh step.
type StepReport struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Count      int        `json:"count"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// RefreshReport summarizes one refresh cycle.
type RefreshReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepReport `json:"steps"`
}

// Step returns the report of the named step.
func (r *RefreshReport) Step(name string) (StepReport, bool) {
	if r == nil {
		return StepReport{}, false
	}
	for _, step := range r.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return StepReport{}, false
}

// Failed reports whether the named step ran and could not commit.
func (r *RefreshReport) Failed(name string) bool {
	step, ok := r.Step(name)
	return ok && (step.Status == StepFailed || step.Status == StepEmpty)
}

// OK reports whether every step committed.
func (r *RefreshReport) OK() bool {
	if r == nil || len(r.Steps) == 0 {
		return false
	}
	for _, step := range r.Steps {
		if step.Status != StepCommitted {
			return false
		}
	}
	return true
}
