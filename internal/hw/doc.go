// Package hw defines the actuator/sensor capability set of the kiosk.
//
// A Valve is a digital output that lets liquid through while open. A
// FlowSensor counts rising-edge pulses proportional to the liquid that passed
// it. Both are identified by a stable pin/channel identifier and are owned by
// a Backend for the lifetime of the process.
//
// Two Backend variants exist:
//   - Sim: in-memory valves and a synthetic pulse source derived from elapsed
//     time and a configured flow rate. Driven by a clock.Clock, so a Manual
//     clock makes every pour reproducible.
//   - GPIO: real digital output lines and interrupt-driven pulse counters
//     via periph.io. Initialisation failures are construction-time errors.
//
// The variant is chosen once at process start and injected; there is no
// global hardware singleton.
//
// Both variants guarantee that Close on an already-closed valve is a no-op and
// that pulse counters are only cleared by ResetCounter or ReadAndResetPulses.
package hw
