package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// StreamSink writes events as json or ndjson to a writer. It backs both the
// --emit streams on stdout and the --out file.
type StreamSink struct {
	enc *structured

	// commit finalizes the destination on Close; nil for plain writers.
	commit func() error
	// abort discards a destination that could not be finalized.
	abort func()
}

// NewEmitSink streams to w, which stays open after Close.
func NewEmitSink(w io.Writer, format string) (*StreamSink, error) {
	if w == nil {
		return nil, errors.New("emit sink writer must not be nil")
	}
	enc, err := newStructured(w, format)
	if err != nil {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &StreamSink{enc: enc}, nil
}

// NewFileSink writes to path, inferring the format from the extension when
// format is empty. ndjson is streamed into path as events arrive. json is
// staged next to path and renamed into place on Close, so a crashed run never
// leaves a truncated document behind.
func NewFileSink(path, format string) (*StreamSink, error) {
	if path == "" {
		return nil, errors.New("output path required")
	}
	if format == "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".json":
			format = "json"
		case ".ndjson", ".jsonl":
			format = "ndjson"
		default:
			return nil, fmt.Errorf("cannot infer output format from file extension %q", ext)
		}
	}
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if format == "ndjson" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create output file: %w", err)
		}
		enc, _ := newStructured(f, format)
		return &StreamSink{enc: enc, commit: f.Close, abort: func() { _ = f.Close() }}, nil
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	enc, _ := newStructured(tmp, format)
	return &StreamSink{
		enc: enc,
		commit: func() error {
			if err := tmp.Close(); err != nil {
				return err
			}
			return os.Rename(tmp.Name(), path)
		},
		abort: func() {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		},
	}, nil
}

func (s *StreamSink) Write(e Event) error {
	return s.enc.write(e)
}

func (s *StreamSink) Close() error {
	if err := s.enc.close(); err != nil {
		if s.abort != nil {
			s.abort()
		}
		return err
	}
	if s.commit != nil {
		return s.commit()
	}
	return nil
}
