// Package schema validates event payloads against CUE schemas.
//
// The schemas live in events.cue, embedded at build time. The same
// registry guards local appends on the device and submissions on the
// aggregator, so both sides agree on what a well-formed event is.
package schema

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/scoreclock/internal/payload"
)

//go:embed events.cue
var eventsCUE []byte

// ValidationError describes a payload that does not match its schema.
type ValidationError struct {
	EventType string `json:"event_type"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.EventType, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.EventType, e.Message)
}

// Registry holds compiled event schemas.
//
// Thread-safety: a cue.Context must not be used concurrently, so
// Validate serializes on an internal mutex.
type Registry struct {
	mu     sync.Mutex
	ctx    *cue.Context
	events cue.Value
	types  []string
}

// New compiles the embedded schemas.
func New() (*Registry, error) {
	return NewFromSource("events.cue", eventsCUE)
}

// MustNew is New for package initialization; it panics on a broken
// embedded schema.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// NewFromSource compiles schemas from src. The source must define an
// "events" struct keyed by event type.
func NewFromSource(filename string, src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}

	events := root.LookupPath(cue.ParsePath("events"))
	if !events.Exists() {
		return nil, fmt.Errorf("%s: missing events struct", filename)
	}

	iter, err := events.Fields()
	if err != nil {
		return nil, fmt.Errorf("%s: events: %w", filename, err)
	}
	var types []string
	for iter.Next() {
		types = append(types, iter.Selector().String())
	}
	slices.Sort(types)

	return &Registry{ctx: ctx, events: events, types: types}, nil
}

// Types returns the known event types, sorted.
func (r *Registry) Types() []string {
	return slices.Clone(r.types)
}

// Known reports whether eventType has a schema.
func (r *Registry) Known(eventType string) bool {
	_, found := slices.BinarySearch(r.types, eventType)
	return found
}

// Validate checks p against the schema for eventType. Unknown event
// types are rejected. A nil payload is validated as {}.
func (r *Registry) Validate(eventType string, p payload.Object) error {
	if !r.Known(eventType) {
		return &ValidationError{EventType: eventType, Message: "unknown event type"}
	}
	if p == nil {
		p = payload.Empty()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	schema := r.events.LookupPath(cue.MakePath(cue.Str(eventType)))
	data := r.ctx.Encode(payload.ToAny(p))
	if err := data.Err(); err != nil {
		return &ValidationError{EventType: eventType, Message: err.Error()}
	}

	if err := schema.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return toValidationError(eventType, err)
	}
	return nil
}

func toValidationError(eventType string, err error) *ValidationError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{EventType: eventType, Message: err.Error()}
	}
	first := errs[0]
	path := first.Path()
	if len(path) > 0 && path[0] == "events" {
		path = path[1:]
	}
	if len(path) > 0 && path[0] == eventType {
		path = path[1:]
	}
	format, args := first.Msg()
	return &ValidationError{
		EventType: eventType,
		Field:     strings.Join(path, "."),
		Message:   fmt.Sprintf(format, args...),
	}
}
