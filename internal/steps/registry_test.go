package steps

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type dummyStep struct {
	id string
}

func (s *dummyStep) ID() string          { return s.id }
func (s *dummyStep) Title() string       { return "Dummy Step" }
func (s *dummyStep) Description() string { return "Does nothing" }
func (s *dummyStep) Run(ctx context.Context, rc *RunContext) (Result, error) {
	return Pass("", nil), nil
}

func resetRegistry(t *testing.T) {
	t.Helper()
	mu.Lock()
	saved := registry
	registry = make(map[string]Step)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		registry = saved
		mu.Unlock()
	})
}

func TestRegistry(t *testing.T) {
	resetRegistry(t)

	Register(&dummyStep{id: "notice"})
	Register(&dummyStep{id: "checkout"})
	Register(&dummyStep{id: "extra"})

	all := List()
	if len(all) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(all))
	}
	got := []string{all[0].ID(), all[1].ID(), all[2].ID()}
	if strings.Join(got, ",") != "checkout,notice,extra" {
		t.Fatalf("List order = %v", got)
	}

	if s, ok := Lookup("checkout"); !ok || s.ID() != "checkout" {
		t.Fatalf("Lookup(checkout) = %v, %v", s, ok)
	}
	if _, ok := Lookup("unknown"); ok {
		t.Fatalf("expected unknown step lookup to fail")
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	resetRegistry(t)
	Register(&dummyStep{id: "setup"})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register(&dummyStep{id: "setup"})
}

func TestSequence(t *testing.T) {
	resetRegistry(t)
	// Register out of order; Sequence must still follow Order.
	for i := len(Order) - 1; i >= 0; i-- {
		Register(&dummyStep{id: Order[i]})
	}

	seq, err := Sequence()
	if err != nil {
		t.Fatalf("Sequence error: %v", err)
	}
	if len(seq) != len(Order) {
		t.Fatalf("sequence length = %d, want %d", len(seq), len(Order))
	}
	for i, s := range seq {
		if s.ID() != Order[i] {
			t.Fatalf("seq[%d] = %s, want %s", i, s.ID(), Order[i])
		}
	}
}

func TestSequence_Missing(t *testing.T) {
	resetRegistry(t)
	Register(&dummyStep{id: "checkout"})

	_, err := Sequence()
	if err == nil {
		t.Fatalf("expected error for missing steps")
	}
	if !strings.Contains(err.Error(), "setup") || !strings.Contains(err.Error(), "notice") {
		t.Fatalf("error should list missing steps: %v", err)
	}
}

func TestStepError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Fail(FailureFetch, cause)

	if KindOf(err) != FailureFetch {
		t.Fatalf("KindOf = %q, want fetch", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("StepError must unwrap to its cause")
	}
	if Fail(FailureFetch, nil) != nil {
		t.Fatalf("Fail(nil) must be nil")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no kind")
	}

	var se *StepError
	if !errors.As(Failf(FailurePush, "rejected %s", "main"), &se) {
		t.Fatalf("Failf must produce a *StepError")
	}
	se.Step = "commit"
	if se.Error() != "step commit: push failure: rejected main" {
		t.Fatalf("Error() = %q", se.Error())
	}
}
