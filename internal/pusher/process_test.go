package pusher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "SCORECLOCK_PUSHER_HELPER"

// TestHelperProcess is not a real test. It is the child process for the
// ProcessWorker tests: it exits with the code in SCORECLOCK_PUSHER_HELPER,
// or, for "wait", blocks until SIGTERM.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	if mode == "wait" {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM)
		fmt.Fprintln(os.Stderr, "helper waiting")
		<-sig
		os.Exit(0)
	}
	if mode == "ignore" {
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	code, _ := strconv.Atoi(mode)
	os.Exit(code)
}

func helperWorker(mode string) *ProcessWorker {
	return NewProcessWorker("helper", os.Args[0], []string{"-test.run=^TestHelperProcess$"}, nil).
		WithEnv(helperEnv + "=" + mode)
}

func TestProcessWorker_StopsOnSIGTERM(t *testing.T) {
	w := helperWorker("wait")
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Alive())

	// Give the child time to install its signal handler.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, w.Stop(5*time.Second))
	assert.False(t, w.Alive())
	assert.NoError(t, w.Err())
}

func TestProcessWorker_CrashIsDead(t *testing.T) {
	w := helperWorker("3")
	require.NoError(t, w.Start(context.Background()))

	select {
	case <-w.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("child should have exited")
	}
	assert.False(t, w.Alive())
	assert.Error(t, w.Err())
}

func TestProcessWorker_KilledAfterTimeout(t *testing.T) {
	w := helperWorker("ignore")
	require.NoError(t, w.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)

	err := w.Stop(100 * time.Millisecond)
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.False(t, w.Alive())
}

func TestProcessWorker_StartFailure(t *testing.T) {
	w := NewProcessWorker("missing", "/nonexistent/scoreclock", nil, nil)
	assert.Error(t, w.Start(context.Background()))
	assert.False(t, w.Alive())
}
