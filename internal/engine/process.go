package engine

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// stopGrace is how long Stop waits after SIGTERM before killing.
const stopGrace = 3 * time.Second

// Process is a handle to a running transfer subprocess. It replaces raw
// PIDs so callers can wait for completion or stop the run without
// racing against reaped processes.
type Process struct {
	cmd  *exec.Cmd
	out  *bytes.Buffer
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Run begins cmd with combined output captured, and reaps it in the
// background.
func Run(cmd *exec.Cmd) (*Process, error) {
	p := &Process{
		cmd:  cmd,
		out:  &bytes.Buffer{},
		done: make(chan struct{}),
	}
	cmd.Stdout = p.out
	cmd.Stderr = p.out
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

// Done returns a channel closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error, valid once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Output returns the combined output, valid once Done is closed.
func (p *Process) Output() string {
	select {
	case <-p.done:
		return p.out.String()
	default:
		return ""
	}
}

// PID returns the OS process ID, for logging only.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stop asks the process to exit with SIGTERM, escalating to SIGKILL if
// it has not exited within the grace period or when ctx is done.
func (p *Process) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	grace := time.NewTimer(stopGrace)
	defer grace.Stop()

	select {
	case <-p.done:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
