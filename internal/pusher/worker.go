package pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopTimeout is returned by Stop when the worker did not exit in time.
var ErrStopTimeout = errors.New("worker did not stop in time")

// Runner is a supervised delivery worker. Implemented by Worker and
// ProcessWorker; both satisfy health.Probe through Alive.
type Runner interface {
	Name() string
	Start(ctx context.Context) error
	Alive() bool
	Stop(timeout time.Duration) error
}

// Worker runs a delivery loop in its own goroutine.
//
// A panic in the loop is recovered and ends the worker: Alive turns false
// and Err reports the panic. The worker is not restarted.
type Worker struct {
	name string
	run  func(ctx context.Context) error

	alive   atomic.Bool
	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

// NewWorker creates a worker around run.
func NewWorker(name string, run func(ctx context.Context) error) *Worker {
	return &Worker{name: name, run: run, done: make(chan struct{})}
}

// NewPusherWorker runs p in a goroutine.
func NewPusherWorker(p *Pusher) *Worker {
	return NewWorker(p.Destination().Name(), p.Run)
}

// Name returns the destination name.
func (w *Worker) Name() string { return w.name }

// Start launches the goroutine. It may be called once.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker %s already started", w.name)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.alive.Store(true)

	go func() {
		defer close(w.done)
		defer w.alive.Store(false)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("worker panicked",
					"worker", w.name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				w.setErr(fmt.Errorf("worker %s panicked: %v", w.name, r))
			}
		}()

		if err := w.run(ctx); err != nil {
			slog.Error("worker exited with error", "worker", w.name, "error", err)
			w.setErr(err)
		}
	}()
	return nil
}

// Alive reports whether the goroutine is still running.
func (w *Worker) Alive() bool {
	return w.alive.Load()
}

// Done is closed when the goroutine exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns why the worker ended, if it ended abnormally.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

// Stop requests a cooperative stop and waits up to timeout.
func (w *Worker) Stop(timeout time.Duration) error {
	if !w.started.Load() {
		return nil
	}
	w.cancel()

	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%s: %w", w.name, ErrStopTimeout)
	}
}
