package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"datadeploy/internal/output"
	"datadeploy/internal/steps"

	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "history.db")
	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _ := openStore(t)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.StartRun(ctx, "run-1", "schedule", "", start))
	require.NoError(t, st.AddStep(ctx, "run-1", steps.Result{StepID: "checkout", Status: steps.StatusPass, Duration: 2 * time.Second}))
	require.NoError(t, st.AddStep(ctx, "run-1", steps.Result{StepID: "setup", Status: steps.StatusFail, Failure: steps.FailureProvision, Error: "python 3.12 does not satisfy 3.11"}))
	require.NoError(t, st.FinishRun(ctx, Run{
		ID: "run-1", Revision: "abc", Status: "failed", Failure: "provision", ExitCode: 1, FinishedAt: start.Add(time.Minute),
	}))

	run, stepsOut, err := st.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "schedule", run.Trigger)
	require.Equal(t, "abc", run.Revision)
	require.Equal(t, "failed", run.Status)
	require.Equal(t, "provision", run.Failure)
	require.Equal(t, 1, run.ExitCode)
	require.True(t, run.StartedAt.Equal(start))
	require.True(t, run.FinishedAt.Equal(start.Add(time.Minute)))

	require.Len(t, stepsOut, 2)
	require.Equal(t, 0, stepsOut[0].Position)
	require.Equal(t, "checkout", stepsOut[0].StepID)
	require.Equal(t, 2*time.Second, stepsOut[0].Duration)
	require.Equal(t, steps.FailureProvision, stepsOut[1].Failure)
	require.Contains(t, stepsOut[1].Error, "3.11")
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	st, _ := openStore(t)
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.StartRun(ctx, id, "push", "", base.Add(time.Duration(i)*time.Hour)))
	}

	runs, err := st.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "c", runs[0].ID)
	require.Equal(t, StatusRunning, runs[0].Status)
	require.True(t, runs[0].FinishedAt.IsZero())

	runs, err = st.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	st, _ := openStore(t)

	_, _, err := st.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, st.FinishRun(ctx, Run{ID: "missing", FinishedAt: time.Now()}), ErrNotFound)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

func TestSink_PersistsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSink(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	pass := steps.Result{StepID: "commit", Status: steps.StatusPass, Message: "no changes"}
	events := []output.Event{
		{Type: output.EventRunStarted, RunID: "r1", Time: now, Trigger: "manual"},
		{Type: output.EventStepStarted, RunID: "r1", Time: now, Step: "commit"},
		{Type: output.EventStepResult, RunID: "r1", Time: now, Step: "commit", Result: &pass},
		{Type: output.EventRunFinished, RunID: "r1", Time: now.Add(time.Second), Status: output.RunSucceeded, Outcome: output.OutcomeUnchanged},
	}
	for _, e := range events {
		require.NoError(t, sink.Write(e))
	}
	require.NoError(t, sink.Close())

	st, err := Open(path)
	require.NoError(t, err)
	defer st.Close()

	run, stepsOut, err := st.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, output.RunSucceeded, run.Status)
	require.Equal(t, output.OutcomeUnchanged, run.Outcome)
	require.Len(t, stepsOut, 1)
	require.Equal(t, "no changes", stepsOut[0].Message)
}
