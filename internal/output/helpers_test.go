package output

import (
	"time"

	"datadeploy/internal/steps"
)

var t0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// failedRun is the event stream of a run whose fetch step failed.
func failedRun(runID string) []Event {
	pass := func(id, msg string) *steps.Result {
		return &steps.Result{StepID: id, Status: steps.StatusPass, Message: msg, Duration: 1500 * time.Millisecond}
	}
	fail := &steps.Result{StepID: "fetch", Status: steps.StatusFail, Failure: steps.FailureFetch, Error: "fetch failure: exit status 3"}
	evs := []Event{
		{Type: EventRunStarted, RunID: runID, Time: t0, Trigger: "schedule"},
		{Type: EventStepResult, RunID: runID, Time: t0, Step: "checkout", Result: pass("checkout", "checked out main at abc123")},
		{Type: EventStepResult, RunID: runID, Time: t0, Step: "setup", Result: pass("setup", "python 3.11.9")},
		{Type: EventStepResult, RunID: runID, Time: t0, Step: "install", Result: pass("install", "installed from requirements.txt")},
		{Type: EventStepResult, RunID: runID, Time: t0, Step: "fetch", Result: fail},
	}
	for _, id := range []string{"verify", "commit", "notice"} {
		r := steps.Skipped(id, "skipped after fetch failure")
		evs = append(evs, Event{Type: EventStepResult, RunID: runID, Time: t0, Step: id, Result: &r})
	}
	return append(evs, Event{
		Type: EventRunFinished, RunID: runID, Time: t0.Add(5 * time.Second),
		Status: RunFailed, Failure: steps.FailureFetch, ExitCode: 1, Duration: 5 * time.Second,
	})
}

// committedRun is the event stream of a run that pushed a new commit.
func committedRun(runID string) []Event {
	evs := []Event{{Type: EventRunStarted, RunID: runID, Time: t0, Trigger: "push", Revision: "0123456789abcdef0123"}}
	for _, id := range steps.Order {
		evs = append(evs, Event{Type: EventStepStarted, RunID: runID, Time: t0, Step: id})
		r := steps.Result{StepID: id, Status: steps.StatusPass}
		evs = append(evs, Event{Type: EventStepResult, RunID: runID, Time: t0, Step: id, Result: &r})
	}
	return append(evs, Event{
		Type: EventRunFinished, RunID: runID, Time: t0.Add(time.Minute),
		Status: RunSucceeded, Outcome: OutcomeCommitted, Commit: "fedcba9876543210fedc", Duration: time.Minute,
	})
}

func writeAll(s Sink, evs []Event) error {
	for _, e := range evs {
		if err := s.Write(e); err != nil {
			return err
		}
	}
	return nil
}
