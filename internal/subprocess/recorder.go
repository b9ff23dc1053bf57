package subprocess

import (
	"context"
	"sync"
)

// Recorder is a Runner that records commands instead of executing them.
// Tests use it in place of a Manager.
type Recorder struct {
	mu   sync.Mutex
	cmds []Cmd

	// Fail, when set, decides the result of each recorded command.
	Fail func(cmd Cmd) error

	// OnRun, when set, is called for each command before Fail. Tests use it
	// to simulate side effects such as the venv directory appearing.
	OnRun func(cmd Cmd)
}

// Run records cmd.
func (r *Recorder) Run(_ context.Context, cmd Cmd) error {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	onRun, fail := r.OnRun, r.Fail
	r.mu.Unlock()

	if onRun != nil {
		onRun(cmd)
	}
	if fail != nil {
		return fail(cmd)
	}
	return nil
}

// Commands returns a copy of the recorded commands in order.
func (r *Recorder) Commands() []Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Cmd, len(r.cmds))
	copy(out, r.cmds)
	return out
}

// Reset forgets all recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.cmds = nil
	r.mu.Unlock()
}
