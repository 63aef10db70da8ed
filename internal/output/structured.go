package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// structured encodes events for machine consumers.
//
// Formats:
//   - json: aggregates events into run reports and writes one JSON array on close
//   - ndjson: streams each Event as one JSON object per line
type structured struct {
	w       io.Writer
	format  string
	reports reportSet
}

func newStructured(w io.Writer, format string) (*structured, error) {
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return &structured{w: w, format: format}, nil
}

func (s *structured) write(e Event) error {
	if s.format == "json" {
		s.reports.apply(e)
		return nil
	}
	if err := json.NewEncoder(s.w).Encode(e); err != nil {
		return err
	}
	return flush(s.w)
}

func (s *structured) close() error {
	if s.format != "json" {
		return nil
	}
	encoder := json.NewEncoder(s.w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.reports.reports()); err != nil {
		return err
	}
	return flush(s.w)
}

// flush pushes buffered bytes out after each event so tailing consumers see
// complete lines while a run is still going.
func flush(w io.Writer) error {
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
