package pusher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ProcessWorker runs a delivery loop as a child process, typically
// "scoreclock push ...". The child gets SIGTERM on Stop and is killed if
// it has not exited within the stop timeout.
type ProcessWorker struct {
	name   string
	path   string
	args   []string
	env    []string
	stderr io.Writer

	alive   atomic.Bool
	started atomic.Bool
	done    chan struct{}
	cmd     *exec.Cmd

	mu  sync.Mutex
	err error
}

// NewProcessWorker creates a worker for path with args. Child stderr is
// copied to stderr (os.Stderr if nil).
func NewProcessWorker(name, path string, args []string, stderr io.Writer) *ProcessWorker {
	if stderr == nil {
		stderr = os.Stderr
	}
	return &ProcessWorker{name: name, path: path, args: args, stderr: stderr, done: make(chan struct{})}
}

// WithEnv appends environment variables for the child.
func (w *ProcessWorker) WithEnv(env ...string) *ProcessWorker {
	w.env = append(w.env, env...)
	return w
}

// Name returns the destination name.
func (w *ProcessWorker) Name() string { return w.name }

// Start launches the child process.
func (w *ProcessWorker) Start(_ context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker %s already started", w.name)
	}

	cmd := exec.Command(w.path, w.args...)
	cmd.Stdout = w.stderr
	cmd.Stderr = w.stderr
	cmd.Env = append(os.Environ(), w.env...)
	if err := cmd.Start(); err != nil {
		close(w.done)
		return fmt.Errorf("start worker %s: %w", w.name, err)
	}
	w.cmd = cmd
	w.alive.Store(true)

	slog.Info("worker process started", "worker", w.name, "pid", cmd.Process.Pid)

	go func() {
		defer close(w.done)
		err := cmd.Wait()
		w.alive.Store(false)
		if err != nil {
			w.setErr(err)
		}
		slog.Info("worker process exited", "worker", w.name, "pid", cmd.Process.Pid, "error", err)
	}()
	return nil
}

// Alive reports whether the child has not exited.
func (w *ProcessWorker) Alive() bool {
	return w.alive.Load()
}

// Done is closed when the child exits.
func (w *ProcessWorker) Done() <-chan struct{} {
	return w.done
}

// Err returns the child's exit error, if any.
func (w *ProcessWorker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *ProcessWorker) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

// Stop sends SIGTERM, waits up to timeout, then kills the child.
func (w *ProcessWorker) Stop(timeout time.Duration) error {
	if w.cmd == nil || !w.Alive() {
		return nil
	}

	if err := w.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal worker %s: %w", w.name, err)
	}

	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
	}

	slog.Warn("worker process did not stop, killing", "worker", w.name, "timeout", timeout)
	if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker %s: %w", w.name, err)
	}
	<-w.done
	return fmt.Errorf("%s: %w", w.name, ErrStopTimeout)
}
