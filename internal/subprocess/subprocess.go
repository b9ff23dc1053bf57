package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// stderrTail is how much of a failed command's stderr is kept for the error.
const stderrTail = 4096

// Cmd describes a single external command invocation.
type Cmd struct {
	Name string
	Args []string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// Env is the full environment. Nil inherits the parent's.
	Env []string
}

// String renders the command the way a shell user would type it.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) error
}

// Manager runs commands one at a time, streaming their output.
type Manager struct {
	// mutex serialises command execution
	mu sync.Mutex

	stdout io.Writer
	stderr io.Writer

	// timeout applies when the context has no deadline. Zero disables it.
	timeout time.Duration
}

// NewManager creates a Manager writing command output to stdout and stderr.
// Nil writers discard output.
func NewManager(stdout, stderr io.Writer, timeout time.Duration) *Manager {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Manager{
		stdout:  stdout,
		stderr:  stderr,
		timeout: timeout,
	}
}

// Run executes cmd and waits for it. A non-zero exit is returned as an
// *ExitError carrying the tail of stderr.
func (m *Manager) Run(ctx context.Context, cmd Cmd) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	tail := &tailBuffer{max: stderrTail}
	c.Stdout = m.stdout
	c.Stderr = io.MultiWriter(m.stderr, tail)

	log.Debug("Running command", "cmd", cmd.String(), "dir", cmd.Dir)

	if err := c.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Name, err)
	}

	err := c.Wait()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out: %w", cmd.Name, ctx.Err())
		}
		return fmt.Errorf("%s cancelled: %w", cmd.Name, ctx.Err())
	}

	if err != nil {
		return &ExitError{Cmd: cmd, Err: err, Stderr: tail.String()}
	}
	return nil
}

// Output runs cmd and returns its combined output. It is meant for short
// probes such as version checks.
func Output(ctx context.Context, cmd Cmd) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	out, err := c.CombinedOutput()
	if err != nil {
		return out, &ExitError{Cmd: cmd, Err: err, Stderr: string(out)}
	}
	return out, nil
}

// CheckBinary checks if a binary exists in the system PATH.
func CheckBinary(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary '%s' not found in PATH: %w", name, err)
	}
	return p, nil
}

// ExitError reports a command that ran but did not succeed.
type ExitError struct {
	Cmd    Cmd
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("%s: %v\nstderr: %s", e.Cmd, e.Err, stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.max {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.max:])
		return n, nil
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
