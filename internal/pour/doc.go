// Package pour implements closed-loop dispensing of a single drink.
//
// A Controller drives one valve/sensor pair through one timed pour:
//
//  1. Claim the valve exclusively (fail fast with ALREADY_IN_USE).
//  2. Reset the sensor counter and open the valve.
//  3. Every PollInterval read-and-reset the pulse counter and accumulate.
//  4. Stop when the target is reached, the safety Ceiling elapses, or the
//     pour is aborted. A silent sensor only logs a warning unless
//     Config.StopOnStall is set.
//  5. Close the valve on every exit path.
//  6. Wait Settle for in-flight pulses, then fold in a final reading.
//  7. Classify the outcome.
//
// Outcome classification is returned in Result, never as an error: a short
// pour is an expected business outcome. Pour only returns an error when the
// pour never started (valve busy, invalid target).
//
// Timing goes through clock.Clock; with clock.Manual the loop is fully
// deterministic.
package pour
