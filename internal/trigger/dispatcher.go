package trigger

import (
	"context"
	"errors"
	"sync"

	"datadeploy/internal/logger"
)

var (
	// ErrQueueFull is returned by Submit when the pending queue is at capacity.
	ErrQueueFull = errors.New("trigger queue is full")

	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// RunFunc executes one run and returns its exit code.
type RunFunc func(ctx context.Context, ev Event) int

// Dispatcher drains queued events through a single worker, so runs in one
// process never overlap. Every accepted event runs; nothing is coalesced.
type Dispatcher struct {
	queue chan Event
	run   RunFunc

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(size int, run RunFunc) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{queue: make(chan Event, size), run: run}
}

// Submit enqueues ev without blocking.
func (d *Dispatcher) Submit(ev Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports how many events wait for the worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run processes events until ctx is done. Events still queued are dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		if n := len(d.queue); n > 0 {
			logger.WarnKV(ctx, "dropping queued triggers on shutdown", "pending", n)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.queue:
			// A cancellation that raced with dequeue wins.
			if ctx.Err() != nil {
				return nil
			}
			logger.InfoKV(ctx, "dispatching run", "trigger", ev.String(), "delivery", ev.Delivery)
			code := d.run(ctx, ev)
			logger.InfoKV(ctx, "run complete", "trigger", ev.String(), "exit_code", code)
		}
	}
}
