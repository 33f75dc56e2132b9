package pour

import (
	"fmt"
	"time"

	"github.com/roach88/pourkiosk/internal/hw"
)

// Outcome classifies how a pour ended.
type Outcome string

const (
	// OutcomeCompleted means at least CompletionRatio of the target was poured.
	OutcomeCompleted Outcome = "completed"

	// OutcomeUnderfilled means some liquid was poured but flow stopped short.
	OutcomeUnderfilled Outcome = "underfilled"

	// OutcomeTimedOut means the safety ceiling elapsed, or the pour was
	// aborted by an emergency stop, before the target was reached.
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeHardwareFault means a backend call failed. The valve was closed
	// before the result was returned.
	OutcomeHardwareFault Outcome = "hardware_fault"

	// OutcomeUnconfigured is never produced by the Controller. The dispense
	// scheduler uses it for items without a valve/sensor mapping.
	OutcomeUnconfigured Outcome = "unconfigured"

	// OutcomeAlreadyInUse is never produced by the Controller either; the
	// scheduler records it when Pour fails fast on a busy valve.
	OutcomeAlreadyInUse Outcome = "already_in_use"
)

// Delivered reports whether the outcome put liquid in the cup as ordered.
func (o Outcome) Delivered() bool {
	return o == OutcomeCompleted
}

// Task is one unit of work for the controller. A cart line with quantity 2
// expands into two Tasks. Tasks are values and are never mutated.
type Task struct {
	ValveID  string  `json:"valve_id"`
	SensorID string  `json:"sensor_id"`
	TargetMl float64 `json:"target_ml"`
}

// Result is produced exactly once per Task.
type Result struct {
	ValveID  string        `json:"valve_id"`
	SensorID string        `json:"sensor_id"`
	TargetMl float64       `json:"target_ml"`
	PouredMl float64       `json:"poured_ml"`
	Pulses   uint64        `json:"pulses"`
	Elapsed  time.Duration `json:"elapsed"`
	Outcome  Outcome       `json:"outcome"`

	// Aborted is set when an emergency stop or context cancellation ended
	// the pour.
	Aborted bool `json:"aborted,omitempty"`

	// Err holds the backend failure behind OutcomeHardwareFault.
	Err error `json:"-"`
}

// String renders the result for logs and traces.
func (r Result) String() string {
	return fmt.Sprintf("valve=%s target=%.1fml poured=%.1fml outcome=%s", r.ValveID, r.TargetMl, r.PouredMl, r.Outcome)
}

// Progress is reported after every poll.
type Progress struct {
	ValveID  string        `json:"valve_id"`
	TargetMl float64       `json:"target_ml"`
	PouredMl float64       `json:"poured_ml"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Config holds the pour loop tunables.
type Config struct {
	// PollInterval is the sampling period of the pulse counter.
	PollInterval time.Duration

	// Ceiling is the safety timeout of one pour.
	Ceiling time.Duration

	// Settle is how long to keep counting after the valve closes.
	Settle time.Duration

	// StallWindow is how long the sensor may stay silent before the loop
	// logs a no-flow warning, once per pour. Zero disables the warning.
	StallWindow time.Duration

	// StopOnStall ends the pour early when flow had started and then stayed
	// silent for StallWindow, instead of waiting out the Ceiling. Off by
	// default: a pause in flow does not end the pour.
	StopOnStall bool

	// CompletionRatio is the fraction of the target that counts as Completed.
	CompletionRatio float64

	// PulsesPerMl is the sensor calibration constant.
	PulsesPerMl float64
}

// Reference values.
const (
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultCeiling         = 60 * time.Second
	DefaultSettle          = 500 * time.Millisecond
	DefaultStallWindow     = 5 * time.Second
	DefaultCompletionRatio = 0.95
)

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    DefaultPollInterval,
		Ceiling:         DefaultCeiling,
		Settle:          DefaultSettle,
		StallWindow:     DefaultStallWindow,
		CompletionRatio: DefaultCompletionRatio,
		PulsesPerMl:     hw.DefaultPulsesPerMl,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	case c.Ceiling <= 0:
		return fmt.Errorf("ceiling must be positive, got %v", c.Ceiling)
	case c.Settle < 0:
		return fmt.Errorf("settle must not be negative, got %v", c.Settle)
	case c.StallWindow < 0:
		return fmt.Errorf("stall window must not be negative, got %v", c.StallWindow)
	case c.CompletionRatio <= 0 || c.CompletionRatio > 1:
		return fmt.Errorf("completion ratio must be in (0,1], got %v", c.CompletionRatio)
	case c.PulsesPerMl <= 0:
		return fmt.Errorf("pulses per ml must be positive, got %v", c.PulsesPerMl)
	}
	return nil
}
