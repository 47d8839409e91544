package engine

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces goal ids. Implemented by RandomIDGenerator
// (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// RandomIDGenerator returns the first 8 hex characters of a random UUID.
// Goal ids only need to be unique within one game.
//
// Thread-safety: stateless and safe for concurrent use.
type RandomIDGenerator struct{}

// Generate returns an id such as "3f2a9c1b".
func (RandomIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewSessionID returns a time-sortable UUIDv7 identifying one run of a
// device process. The aggregator records it next to each event.
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("g1", "g2")
//	gen.Generate() // "g1"
//	gen.Generate() // "g2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics if all ids have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
