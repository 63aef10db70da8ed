package output

import (
	"time"

	"datadeploy/internal/steps"
)

const (
	EventRunStarted  = "run.started"
	EventStepStarted = "step.started"
	EventStepResult  = "step.result"
	EventRunFinished = "run.finished"
)

const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"

	OutcomeCommitted = "committed"
	OutcomeUnchanged = "unchanged"
)

// Event is a lifecycle record. NDJSON sinks stream one Event per line:
// - run.started
// - step.started
// - step.result
// - run.finished
//
// JSON sinks aggregate events into one RunReport per run.
type Event struct {
	Type  string    `json:"type"`
	RunID string    `json:"run_id"`
	Time  time.Time `json:"time"`

	// run.started
	Trigger  string `json:"trigger,omitempty"`
	Revision string `json:"revision,omitempty"`

	// step.started, step.result
	Step   string        `json:"step,omitempty"`
	Result *steps.Result `json:"result,omitempty"`

	// run.finished
	Status   string            `json:"status,omitempty"`
	Outcome  string            `json:"outcome,omitempty"`
	Failure  steps.FailureKind `json:"failure,omitempty"`
	Commit   string            `json:"commit,omitempty"`
	ExitCode int               `json:"exit_code,omitempty"`
	Duration time.Duration     `json:"duration_ns,omitempty"`
}

// RunReport is the aggregate view of one run.
type RunReport struct {
	RunID      string            `json:"run_id"`
	Trigger    string            `json:"trigger"`
	Revision   string            `json:"revision,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Status     string            `json:"status,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Failure    steps.FailureKind `json:"failure,omitempty"`
	Commit     string            `json:"commit,omitempty"`
	ExitCode   int               `json:"exit_code"`
	Steps      []steps.Result    `json:"steps"`
}

// Apply folds e into the report.
func (r *RunReport) Apply(e Event) {
	switch e.Type {
	case EventRunStarted:
		r.RunID = e.RunID
		r.Trigger = e.Trigger
		r.Revision = e.Revision
		r.StartedAt = e.Time
	case EventStepResult:
		if e.Result != nil {
			r.Steps = append(r.Steps, *e.Result)
		}
	case EventRunFinished:
		r.FinishedAt = e.Time
		r.Status = e.Status
		r.Outcome = e.Outcome
		r.Failure = e.Failure
		r.Commit = e.Commit
		r.ExitCode = e.ExitCode
		if e.Revision != "" {
			r.Revision = e.Revision
		}
	}
}

// reportSet groups events by run ID in arrival order.
type reportSet struct {
	order []*RunReport
	byID  map[string]*RunReport
}

func (s *reportSet) apply(e Event) *RunReport {
	if s.byID == nil {
		s.byID = make(map[string]*RunReport)
	}
	r, ok := s.byID[e.RunID]
	if !ok {
		r = &RunReport{RunID: e.RunID, Steps: []steps.Result{}}
		s.byID[e.RunID] = r
		s.order = append(s.order, r)
	}
	r.Apply(e)
	return r
}

func (s *reportSet) reports() []*RunReport {
	if s.order == nil {
		return []*RunReport{}
	}
	return s.order
}
