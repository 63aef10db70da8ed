package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"datadeploy/internal/steps"

	"github.com/fatih/color"
)

type ConsoleSink struct {
	writer io.Writer
	format string // "text", "json", "ndjson"
	mu     sync.Mutex
	enc    *structured
}

// NewConsoleSink writes to w (stdout when nil). Colors follow fatih/color's
// terminal detection.
func NewConsoleSink(w io.Writer, format string) (*ConsoleSink, error) {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	s := &ConsoleSink{writer: w, format: format}
	switch format {
	case "text":
	case "json", "ndjson":
		enc, err := newStructured(w, format)
		if err != nil {
			return nil, err
		}
		s.enc = enc
	default:
		return nil, fmt.Errorf("unsupported console format: %s", format)
	}
	return s, nil
}

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	boldColor = color.New(color.Bold)
)

func statusLabel(st steps.Status) string {
	label := fmt.Sprintf("[%s]", st)
	switch st {
	case steps.StatusPass:
		return passColor.Sprint(label)
	case steps.StatusFail:
		return failColor.Sprint(label)
	default:
		return skipColor.Sprint(label)
	}
}

func (s *ConsoleSink) Write(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc != nil {
		return s.enc.write(e)
	}

	var b strings.Builder
	switch e.Type {
	case EventRunStarted:
		head := fmt.Sprintf("Run %s (%s", shortID(e.RunID), e.Trigger)
		if e.Revision != "" {
			head += " @ " + shortSHA(e.Revision)
		}
		b.WriteString(boldColor.Sprint(head+")") + "\n")
	case EventStepResult:
		if e.Result == nil {
			return nil
		}
		r := e.Result
		fmt.Fprintf(&b, "%s %s", statusLabel(r.Status), r.StepID)
		if r.Message != "" {
			fmt.Fprintf(&b, " - %s", r.Message)
		}
		if r.Status != steps.StatusSkipped && r.Duration > 0 {
			fmt.Fprintf(&b, " (%s)", r.Duration.Truncate(time.Millisecond))
		}
		b.WriteString("\n")
		if r.Error != "" {
			fmt.Fprintf(&b, "       error: %s\n", r.Error)
		}
	case EventRunFinished:
		line := fmt.Sprintf("Run %s", e.Status)
		switch {
		case e.Status == RunFailed && e.Failure != "":
			line += fmt.Sprintf(": %s failure", e.Failure)
		case e.Outcome == OutcomeCommitted:
			line += fmt.Sprintf(": committed %s", shortSHA(e.Commit))
		case e.Outcome != "":
			line += ": " + e.Outcome
		}
		if e.Duration > 0 {
			line += fmt.Sprintf(" in %s", e.Duration.Truncate(time.Millisecond))
		}
		if e.Status == RunFailed {
			b.WriteString(failColor.Sprint(line) + "\n")
		} else {
			b.WriteString(passColor.Sprint(line) + "\n")
		}
	default:
		// step.started is implied by the step's transcript.
		return nil
	}

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return err
	}
	return flush(s.writer)
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc != nil {
		return s.enc.close()
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
