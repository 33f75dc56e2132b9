package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Kind names an event stream. It is also the last MQTT topic segment.
type Kind string

const (
	KindTransition    Kind = "transition"
	KindOrder         Kind = "order"
	KindProgress      Kind = "progress"
	KindPour          Kind = "pour"
	KindEmergencyStop Kind = "emergency_stop"
)

// Event is one telemetry message.
type Event struct {
	Kind    Kind      `json:"kind"`
	KioskID string    `json:"kiosk_id,omitempty"`
	OrderID string    `json:"order_id,omitempty"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Log writes events to the default slog logger. Progress events are logged
// at Debug, everything else at Info.
type Log struct{}

// Publish implements Publisher.
func (Log) Publish(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Kind == KindProgress {
		level = slog.LevelDebug
	}
	slog.Log(ctx, level, "event", "kind", e.Kind, "order", e.OrderID, "data", e.Data)
	return nil
}

// Close implements Publisher.
func (Log) Close() error { return nil }

// Recorder keeps every event in memory.
//
// Thread-safety: All methods are safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close implements Publisher.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of the recorded events, optionally filtered by kind.
func (r *Recorder) Events(kinds ...Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(kinds) == 0 {
		return slices.Clone(r.events)
	}
	var out []Event
	for _, e := range r.events {
		if slices.Contains(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Multi fans every event out to several publishers. Publish returns the
// first error but always tries every publisher.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Publisher.
func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
