// Package clock abstracts wall-clock time for the dispensing loop.
//
// The pour controller never calls time.Now or time.After directly. Every
// timing decision (poll interval, safety ceiling, settle window, stall
// detection) goes through a Clock so that tests can drive the loop with a
// Manual clock and get byte-identical results on every run.
package clock
