package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datadeploy/internal/output"
)

// Sink records run events in the ledger. It owns the Store and closes it.
type Sink struct {
	mu    sync.Mutex
	store *Store
}

func NewSink(path string) (*Sink, error) {
	st, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Sink{store: st}, nil
}

func (s *Sink) Write(e output.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ledger writes outlive a cancelled run so the failure is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch e.Type {
	case output.EventRunStarted:
		return s.store.StartRun(ctx, e.RunID, e.Trigger, e.Revision, e.Time)
	case output.EventStepResult:
		if e.Result == nil {
			return nil
		}
		return s.store.AddStep(ctx, e.RunID, *e.Result)
	case output.EventRunFinished:
		return s.store.FinishRun(ctx, Run{
			ID:         e.RunID,
			Revision:   e.Revision,
			Status:     e.Status,
			Outcome:    e.Outcome,
			Failure:    string(e.Failure),
			Commit:     e.Commit,
			ExitCode:   e.ExitCode,
			FinishedAt: e.Time,
		})
	}
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	return nil
}
