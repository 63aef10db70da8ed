// Package proc runs external commands for the deployment steps: the
// dependency installer, the fetch collaborator, the interpreter probe and git.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Command describes one subprocess invocation.
type Command struct {
	// Name is the executable; Args are passed verbatim.
	Name string
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the full environment. Nil inherits the current process environment.
	Env []string

	// Output receives combined stdout/stderr as it is produced. May be nil.
	Output io.Writer

	// Stdout additionally receives stdout only. May be nil.
	Stdout io.Writer
}

// Shell returns a Command that runs script through sh -c.
func Shell(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

// String renders the command for logs.
func (c Command) String() string {
	if c.Name == "sh" && len(c.Args) == 2 && c.Args[0] == "-c" {
		return c.Args[1]
	}
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	// Tail holds the last bytes of combined output, for error messages.
	Tail     []byte
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// ExitError describes a command that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Tail     string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	if e.Tail != "" {
		msg += ": " + e.Tail
	}
	return msg
}

// Check converts a non-zero exit into an *ExitError.
func Check(cmd Command, res *Result, err error) error {
	if err != nil {
		return err
	}
	if res.Success() {
		return nil
	}
	return &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Tail: strings.TrimSpace(string(res.Tail))}
}

// ErrNotFound is returned when the executable cannot be located.
var ErrNotFound = errors.New("executable not found")

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct {
	// TailSize bounds Result.Tail. Zero uses a 4 KiB tail.
	TailSize int
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts cmd and waits for it. A non-zero exit is reported through
// Result.ExitCode, not as an error; errors mean the command could not run or
// was cancelled. On cancellation the whole process group is killed.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("proc: nil context")
	}
	if cmd.Name == "" {
		return nil, errors.New("proc: empty command")
	}
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cmd.Name)
	}

	tailSize := r.TailSize
	if tailSize <= 0 {
		tailSize = 4096
	}

	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout bytes.Buffer
	tail := &tailBuffer{max: tailSize}
	combined := []io.Writer{tail}
	if cmd.Output != nil {
		combined = append(combined, cmd.Output)
	}
	shared := &lockedWriter{w: io.MultiWriter(combined...)}

	outs := []io.Writer{&stdout, shared}
	if cmd.Stdout != nil {
		outs = append(outs, cmd.Stdout)
	}
	c.Stdout = io.MultiWriter(outs...)
	c.Stderr = shared

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if c.Process != nil {
			_ = syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("%s cancelled: %w", cmd.Name, ctx.Err())
	case err = <-done:
	}

	res := &Result{
		Stdout:   stdout.Bytes(),
		Tail:     tail.Bytes(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", cmd.Name, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// Environ returns the current environment without the named variables.
func Environ(drop ...string) []string {
	env := os.Environ()
	if len(drop) == 0 {
		return env
	}
	out := make([]string, 0, len(env))
	for _, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		skip := false
		for _, d := range drop {
			if d != "" && key == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, entry)
		}
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte {
	return append([]byte(nil), t.buf...)
}

// lockedWriter serializes writes from the stdout and stderr copier goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
