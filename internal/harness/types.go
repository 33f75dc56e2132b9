package harness

import (
	"fmt"
	"strings"
)

// Trace event kinds.
const (
	KindCmd        = "cmd"
	KindState      = "state"
	KindError      = "error"
	KindTransition = "transition"
	KindOrder      = "order"
	KindPour       = "pour"
	KindEstop      = "estop"
)

// TraceEvent is one line of a scenario trace.
type TraceEvent struct {
	// Step is the 1-based scenario step that produced the event.
	Step int    `json:"step"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// String renders the event as a trace line.
func (e TraceEvent) String() string {
	return fmt.Sprintf("%02d %-10s %s", e.Step, e.Kind, e.Text)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists what happened, step by step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace line.
func (r *Result) AddTrace(step int, kind, text string) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Kind: kind, Text: text})
}

// TraceText renders the whole trace, one event per line, under a header
// naming the scenario.
func (r *Result) TraceText(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
