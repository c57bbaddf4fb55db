package logging

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Tracer is the observability sink of the detection and trading core.
// The core never logs directly; it reports events here.
type Tracer interface {
	Trace(event string, fields map[string]interface{})
}

// NopTracer discards every event.
type NopTracer struct{}

// Trace implements Tracer.
func (NopTracer) Trace(string, map[string]interface{}) {}

// ZerologTracer forwards events to a zerolog logger at debug level.
type ZerologTracer struct {
	logger zerolog.Logger
}

// NewZerologTracer creates a tracer writing to logger.
func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// Trace implements Tracer.
func (t *ZerologTracer) Trace(event string, fields map[string]interface{}) {
	e := t.logger.Debug().Str("event", event)
	// sorted so that identical runs produce identical log lines
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e = e.Interface(k, fields[k])
	}
	e.Msg("trace")
}

// TraceEvent is one recorded event of a RecordingTracer.
type TraceEvent struct {
	Name   string
	Fields map[string]interface{}
}

// RecordingTracer keeps every event in memory. Used by tests and by the CLI
// when it prints a trace summary.
type RecordingTracer struct {
	mu     sync.Mutex
	events []TraceEvent
}

// Trace implements Tracer.
func (r *RecordingTracer) Trace(event string, fields map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	r.events = append(r.events, TraceEvent{Name: event, Fields: copied})
}

// Events returns a copy of the recorded events.
func (r *RecordingTracer) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events with the given name were recorded.
func (r *RecordingTracer) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == event {
			n++
		}
	}
	return n
}
