package executor

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// AgentHandle wraps a spawned agent subprocess (spec.md 4.6). A background
// goroutine reaps the process and records its exit, so IsRunning/TryWait
// never block — mirroring the reference fleet's context-cancellation-
// triggers-Process.Kill goroutine in services/orchestrator/plugins.go, but
// applied to reaping instead of cancellation.
type AgentHandle struct {
	PID int

	cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser

	done    chan struct{}
	mu      sync.Mutex
	waitErr error
	exited  bool
}

// newAgentHandle takes ownership of an already-Start'd command and begins
// reaping it in the background. onExit, if non-nil, runs once after Wait
// returns — used to close files piped in as the command's Stdout/Stderr
// instead of AgentHandle.Stdout.
func newAgentHandle(cmd *exec.Cmd, stdin io.WriteCloser, stdout io.ReadCloser, onExit func()) *AgentHandle {
	h := &AgentHandle{
		PID:    cmd.Process.Pid,
		cmd:    cmd,
		Stdin:  stdin,
		Stdout: stdout,
		done:   make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.exited = true
		h.mu.Unlock()
		if onExit != nil {
			onExit()
		}
		close(h.done)
	}()
	return h
}

// IsRunning reports whether the process has not yet been reaped.
func (h *AgentHandle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

// Wait blocks until the process exits and returns its exec.Wait error, if
// any (nil on a clean exit 0).
func (h *AgentHandle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// TryWait returns (true, err) once the process has exited, or (false, nil)
// if it is still running; it never blocks.
func (h *AgentHandle) TryWait() (bool, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return true, h.waitErr
	default:
		return false, nil
	}
}

// Terminate sends SIGTERM for a graceful shutdown.
func (h *AgentHandle) Terminate() error {
	if h.cmd.Process == nil {
		return fmt.Errorf("executor: process not started")
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("executor: SIGTERM pid %d: %w", h.PID, err)
	}
	return nil
}

// Kill forcefully terminates the process via SIGKILL.
func (h *AgentHandle) Kill() error {
	if h.cmd.Process == nil {
		return fmt.Errorf("executor: process not started")
	}
	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("executor: kill pid %d: %w", h.PID, err)
	}
	return nil
}
