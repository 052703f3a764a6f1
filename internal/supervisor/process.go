package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/courtrace/agent/internal/model"
)

// ProcessHandle abstracts a running worker subprocess so the supervisor
// can signal and wait on it without depending on *exec.Cmd directly.
type ProcessHandle interface {
	PID() int
	Signal(sig syscall.Signal) error
	Wait() error
}

// ProcessRunner abstracts subprocess spawning so tests can substitute a
// fake worker.
//
// Grounded on the teacher's internal/session.ProcessRunner interface
// (os/exec-backed Claude CLI spawner), adapted from "one CLI subprocess
// per session" to "one courtrace worker subprocess per job".
type ProcessRunner interface {
	Start(ctx context.Context, jobID string, jobType model.JobType) (stdout io.ReadCloser, handle ProcessHandle, err error)
}

// execHandle wraps *exec.Cmd to satisfy ProcessHandle.
type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) PID() int { return h.cmd.Process.Pid }

// Signal delivers sig to the whole process group rather than just the
// worker itself, since SysProcAttr{Setpgid: true} makes the worker its
// own group leader.
func (h *execHandle) Signal(sig syscall.Signal) error {
	return syscall.Kill(-h.cmd.Process.Pid, sig)
}

func (h *execHandle) Wait() error { return h.cmd.Wait() }

// SelfExecRunner spawns a fresh copy of the running binary re-entered at
// `worker --job-id <id> --job-type <type>`, matching spec.md's "every
// job is an independent OS-level worker" design note.
//
// Grounded on internal/session/runner.go's CLIRunner: same
// SysProcAttr{Setpgid: true} choice so Stop can signal the whole
// subprocess tree, same "pipe stdout, leave stderr attached to the
// parent" plumbing.
type SelfExecRunner struct {
	// ExtraArgs is appended after the job-id/job-type flags, typically
	// the flags needed to re-derive the worker's configuration
	// (--config-root, --cred-path, ...).
	ExtraArgs []string
}

// Start implements ProcessRunner.
func (r *SelfExecRunner) Start(_ context.Context, jobID string, jobType model.JobType) (io.ReadCloser, ProcessHandle, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("supervisor: resolve own executable: %w", err)
	}
	args := append([]string{"worker", "--job-id", jobID, "--job-type", string(jobType)}, r.ExtraArgs...)
	cmd := exec.Command(self, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = os.Stderr

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("supervisor: start worker: %w", err)
	}
	return stdoutPipe, &execHandle{cmd: cmd}, nil
}

// processAlive reports whether pid names a live process, using the
// zero-signal probe idiom: ESRCH means dead, EPERM means alive but
// owned by another user, nil means alive and signalable.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
