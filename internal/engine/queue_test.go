package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedCommand(name string) command {
	return command{name: name, fn: func(context.Context) error { return nil }, done: make(chan error, 1)}
}

func TestCommandQueue_FIFO(t *testing.T) {
	q := newCommandQueue()
	for _, name := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(namedCommand(name)))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.name)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestCommandQueue_SignalCoalesces(t *testing.T) {
	q := newCommandQueue()
	q.Enqueue(namedCommand("a"))
	q.Enqueue(namedCommand("b"))

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected a signal")
	}

	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestCommandQueue_CloseRejectsAndWakes(t *testing.T) {
	q := newCommandQueue()
	q.Enqueue(namedCommand("queued"))

	woke := make(chan struct{})
	go func() {
		<-q.Wait() // consumes the enqueue signal
		<-q.Wait() // returns once closed
		close(woke)
	}()

	q.Close()
	q.Close() // idempotent

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Close should wake waiters")
	}

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(namedCommand("late")))

	got, ok := q.TryDequeue()
	require.True(t, ok, "queued commands survive Close")
	assert.Equal(t, "queued", got.name)
}

func TestCommandQueue_ConcurrentEnqueue(t *testing.T) {
	q := newCommandQueue()
	const goroutines, per = 20, 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				q.Enqueue(namedCommand("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*per, q.Len())
}
