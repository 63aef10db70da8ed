// Package steps defines the deployment step chain: the Step contract, the
// per-run context shared between steps, and the registry that fixes their order.
package steps

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Step interface {
	ID() string
	Title() string
	Description() string

	// Run performs the step. A non-nil error fails the step and aborts the
	// chain; return a *StepError to attach a failure kind.
	Run(ctx context.Context, rc *RunContext) (Result, error)
}

type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusSkipped Status = "SKIPPED"
)

// FailureKind classifies why a run stopped.
type FailureKind string

const (
	FailureCheckout   FailureKind = "checkout"
	FailureProvision  FailureKind = "provision"
	FailureDependency FailureKind = "dependency"
	FailureFetch      FailureKind = "fetch"
	FailureVerify     FailureKind = "verify"
	FailurePush       FailureKind = "push"
)

type StepError struct {
	Step string
	Kind FailureKind
	Err  error
}

func (e *StepError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("step %s: %s failure: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Fail wraps err with a failure kind. The engine fills in the step ID.
func Fail(kind FailureKind, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Kind: kind, Err: err}
}

// Failf is Fail with a formatted cause.
func Failf(kind FailureKind, format string, args ...any) error {
	return &StepError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the failure kind carried by err, or "" when none.
func KindOf(err error) FailureKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

type Result struct {
	StepID   string        `json:"step_id"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Failure  FailureKind   `json:"failure,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	// Evidence contains simple key-value string pairs supporting the result.
	Evidence map[string]string `json:"evidence,omitempty"`
}

// Pass builds a passing result.
func Pass(message string, evidence map[string]string) Result {
	return Result{Status: StatusPass, Message: message, Evidence: evidence}
}

// Skipped builds the result reported for steps after a failure.
func Skipped(stepID, reason string) Result {
	return Result{StepID: stepID, Status: StatusSkipped, Message: reason}
}
