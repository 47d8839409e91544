// Package logsink funnels log output from many goroutines, and from child
// worker processes, through one writer goroutine.
//
// Producers never block: each Write copies its bytes onto a buffered
// channel. When the channel is full the record is dropped and counted, and
// the writer reports the drop count the next time it runs.
package logsink

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the number of queued records before drops begin.
const DefaultBuffer = 1024

// Sink is an io.Writer backed by a channel and a single consumer.
type Sink struct {
	out   io.Writer
	lines chan []byte
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
}

// New starts a sink writing to out.
func New(out io.Writer, buffer int) *Sink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Sink{
		out:   out,
		lines: make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Write queues a copy of p. It never blocks on the underlying writer.
// After Close, writes go straight to the underlying writer.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return s.out.Write(p)
	}

	line := make([]byte, len(p))
	copy(line, p)
	select {
	case s.lines <- line:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped returns how many records were discarded because the queue was full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close drains queued records and stops the writer goroutine.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.lines)
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *Sink) run() {
	defer close(s.done)
	var reported uint64
	for line := range s.lines {
		if n := s.dropped.Load(); n > reported {
			fmt.Fprintf(s.out, "logsink: dropped %d records\n", n-reported)
			reported = n
		}
		s.out.Write(line)
	}
}

// Options selects the handler format and level.
type Options struct {
	Format string // "text" or "json"
	Level  slog.Level
}

// Handler returns a slog handler that writes through the sink.
func (s *Sink) Handler(opts Options) slog.Handler {
	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.Format == "json" {
		return slog.NewJSONHandler(s, hopts)
	}
	return slog.NewTextHandler(s, hopts)
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}
