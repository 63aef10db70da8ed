package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestConsoleSink_Text(t *testing.T) {
	withoutColor(t)

	tests := []struct {
		name     string
		events   []Event
		expected []string
		absent   []string
	}{
		{
			name:   "failed run",
			events: failedRun("0a1b2c3d-aaaa"),
			expected: []string{
				"Run 0a1b2c3d (schedule)",
				"[PASS] checkout - checked out main at abc123 (1.5s)",
				"[FAIL] fetch",
				"       error: fetch failure: exit status 3",
				"[SKIPPED] verify - skipped after fetch failure",
				"[SKIPPED] notice",
				"Run failed: fetch failure in 5s",
			},
		},
		{
			name:   "committed run",
			events: committedRun("r2"),
			expected: []string{
				"Run r2 (push @ 0123456789ab)",
				"[PASS] commit",
				"Run succeeded: committed fedcba987654 in 1m0s",
			},
			absent: []string{"step.started"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s, err := NewConsoleSink(&buf, "text")
			if err != nil {
				t.Fatalf("NewConsoleSink: %v", err)
			}
			if err := writeAll(s, tt.events); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			out := buf.String()
			for _, want := range tt.expected {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q\n%s", want, out)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(out, bad) {
					t.Errorf("output should not contain %q\n%s", bad, out)
				}
			}
		})
	}
}

func TestConsoleSink_JSONAggregatesRuns(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewConsoleSink(&buf, "json")
	if err != nil {
		t.Fatalf("NewConsoleSink: %v", err)
	}
	if err := writeAll(s, failedRun("r1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("json mode must not write before Close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var reports []RunReport
	if err := json.Unmarshal(buf.Bytes(), &reports); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	r := reports[0]
	if r.RunID != "r1" || r.Status != RunFailed || r.Failure != "fetch" || r.ExitCode != 1 || len(r.Steps) != 7 {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestConsoleSink_NDJSONStreamsEvents(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewConsoleSink(&buf, "ndjson")
	if err != nil {
		t.Fatalf("NewConsoleSink: %v", err)
	}
	evs := committedRun("r3")
	if err := writeAll(s, evs); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(evs) {
		t.Fatalf("lines = %d, want %d", len(lines), len(evs))
	}
	var first, last Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line: %v", err)
	}
	if first.Type != EventRunStarted || last.Type != EventRunFinished || last.Outcome != OutcomeCommitted {
		t.Fatalf("unexpected first/last events: %+v / %+v", first, last)
	}
}

func TestNewConsoleSink_UnknownFormat(t *testing.T) {
	if _, err := NewConsoleSink(&bytes.Buffer{}, "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
