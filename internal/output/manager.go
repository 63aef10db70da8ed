package output

import (
	"errors"
	"fmt"
	"sync"
)

// Sink is a destination for run events.
type Sink interface {
	Write(e Event) error
	Close() error
}

type sinkEntry struct {
	sink Sink
	err  error
}

// Manager fans events out to every sink in registration order. A sink whose
// Write fails is detached for the rest of the run so one broken destination
// reports once and the others keep receiving events. Detached sinks are still
// closed.
type Manager struct {
	mu    sync.Mutex
	sinks []*sinkEntry
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return errors.New("output manager is nil")
	}
	if s == nil {
		return errors.New("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, &sinkEntry{sink: s})
	return nil
}

// Len reports the number of registered sinks, detached ones included.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sinks)
}

// Write delivers e to every attached sink and returns the failures of this
// call only.
func (m *Manager) Write(e Event) error {
	if m == nil {
		return errors.New("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, entry := range m.sinks {
		if entry.err != nil {
			continue
		}
		if err := entry.sink.Write(e); err != nil {
			entry.err = err
			errs = append(errs, fmt.Errorf("%T detached after %s: %w", entry.sink, e.Type, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Close() error {
	if m == nil {
		return errors.New("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, entry := range m.sinks {
		if err := entry.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", entry.sink, err))
		}
	}
	return errors.Join(errs...)
}
