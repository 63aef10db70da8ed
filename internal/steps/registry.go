package steps

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Order is the fixed sequence every run walks, whatever its trigger.
var Order = []string{"checkout", "setup", "install", "fetch", "verify", "commit", "notice"}

var (
	registry = make(map[string]Step)
	mu       sync.RWMutex
)

func Register(s Step) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[s.ID()]; exists {
		panic(fmt.Sprintf("step %s already registered", s.ID()))
	}
	registry[s.ID()] = s
}

// List returns all registered steps in chain order; steps outside Order sort last by ID.
func List() []Step {
	mu.RLock()
	defer mu.RUnlock()
	var out []Step
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := position(out[i].ID()), position(out[j].ID())
		if pi != pj {
			return pi < pj
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

func Lookup(id string) (Step, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[strings.TrimSpace(id)]
	return s, ok
}

// Sequence returns the registered steps in Order. Every step in Order must be registered.
func Sequence() ([]Step, error) {
	mu.RLock()
	defer mu.RUnlock()
	seq := make([]Step, 0, len(Order))
	var missing []string
	for _, id := range Order {
		s, ok := registry[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		seq = append(seq, s)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("steps not registered: %s", strings.Join(missing, ", "))
	}
	return seq, nil
}

func position(id string) int {
	for i, o := range Order {
		if o == id {
			return i
		}
	}
	return len(Order)
}
