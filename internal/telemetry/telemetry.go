// Package telemetry carries structured turn events and the Prometheus metrics
// shared by the orchestrator, alert router and scheduler.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind names an orchestrator stage boundary.
type EventKind string

const (
	TurnStart      EventKind = "turn_start"
	TurnEnd        EventKind = "turn_end"
	ModelCallStart EventKind = "model_call_start"
	ModelCallEnd   EventKind = "model_call_end"
	ToolCallStart  EventKind = "tool_call_start"
	ToolCallEnd    EventKind = "tool_call_end"
)

// Event is one structured stage record.
type Event struct {
	Kind      EventKind
	TurnID    string
	UserKey   string
	SessionID string
	Name      string // tool name or model iteration label
	Status    string // success, not_found, error, degraded, retry
	Duration  time.Duration
	Err       error
	At        time.Time
}

// Sink receives events. Implementations must not block the caller for long.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// LogSink writes each event as a structured slog record.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"event", string(ev.Kind),
		"turn_id", ev.TurnID,
		"user_key", ev.UserKey,
		"session_id", ev.SessionID,
	}
	if ev.Name != "" {
		attrs = append(attrs, "name", ev.Name)
	}
	if ev.Status != "" {
		attrs = append(attrs, "status", ev.Status)
	}
	if ev.Duration > 0 {
		attrs = append(attrs, "duration_ms", ev.Duration.Milliseconds())
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err.Error())
		logger.WarnContext(ctx, "turn event", attrs...)
		return
	}
	logger.DebugContext(ctx, "turn event", attrs...)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}
