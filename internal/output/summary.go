package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SummarySink appends a Markdown run summary to a file on Close. It suits
// $GITHUB_STEP_SUMMARY, which other steps also append to.
type SummarySink struct {
	path    string
	mu      sync.Mutex
	reports reportSet
}

func NewSummarySink(path string) (*SummarySink, error) {
	if path == "" {
		return nil, fmt.Errorf("summary path required")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &SummarySink{path: path}, nil
}

func (s *SummarySink) Write(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports.apply(e)
	return nil
}

func (s *SummarySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open summary file: %w", err)
	}
	for _, r := range s.reports.reports() {
		if err := WriteMarkdown(f, r); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

// WriteMarkdown renders one run as a heading, a fact list and a step table.
func WriteMarkdown(w io.Writer, r *RunReport) error {
	status := r.Status
	if status == "" {
		status = "incomplete"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Data deploy %s\n\n", status)
	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- Trigger: %s\n", r.Trigger)
	if r.Revision != "" {
		fmt.Fprintf(&b, "- Revision: `%s`\n", shortSHA(r.Revision))
	}
	switch {
	case r.Failure != "":
		fmt.Fprintf(&b, "- Failure: %s\n", r.Failure)
	case r.Outcome == OutcomeCommitted:
		fmt.Fprintf(&b, "- Outcome: committed `%s`\n", shortSHA(r.Commit))
	case r.Outcome != "":
		fmt.Fprintf(&b, "- Outcome: %s\n", r.Outcome)
	}
	b.WriteString("\n")

	t := table.NewWriter()
	style := table.StyleDefault
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)
	t.AppendHeader(table.Row{"Step", "Status", "Duration", "Message"})
	for _, st := range r.Steps {
		dur := ""
		if st.Duration > 0 {
			dur = st.Duration.Truncate(time.Millisecond).String()
		}
		msg := st.Message
		if st.Error != "" {
			msg = st.Error
		}
		t.AppendRow(table.Row{st.StepID, string(st.Status), dur, oneLine(msg)})
	}
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	return s
}
