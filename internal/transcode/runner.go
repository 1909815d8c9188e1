package transcode

import (
	"bytes"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Process is a launched encoder process under supervision.
type Process interface {
	// Done is closed when the process has exited.
	Done() <-chan struct{}

	// Err returns the exit error. Only valid after Done is closed.
	Err() error

	// Kill terminates the process. Killing an already-exited process is a
	// no-op.
	Kill() error
}

// Runner launches encoder processes. The engine depends on this interface so
// tests can substitute a fake supervisor.
type Runner interface {
	Start(spec CommandSpec) (Process, error)
}

// ExecRunner runs commands with os/exec and observes their exit
// asynchronously.
type ExecRunner struct {
	Log *slog.Logger
}

type execProcess struct {
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	killMu sync.Mutex
	killed bool
}

// Start implements Runner.
func (r *ExecRunner) Start(spec CommandSpec) (Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if r.Log != nil {
		r.Log.Debug("encoder started",
			slog.Int("pid", cmd.Process.Pid),
			slog.String("cmd", spec.Path+" "+strings.Join(spec.Args, " ")))
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		if p.err != nil && r.Log != nil {
			r.Log.Debug("encoder exited",
				slog.Int("pid", cmd.Process.Pid),
				slog.String("error", p.err.Error()),
				slog.String("stderr", tail(stderr.String(), 512)))
		}
		close(p.done)
	}()
	return p, nil
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error { return p.err }

func (p *execProcess) Kill() error {
	p.killMu.Lock()
	defer p.killMu.Unlock()
	if p.killed {
		return nil
	}
	p.killed = true
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
