// Package dispense turns an approved order into a deterministic sequence of
// pours.
//
// Each OrderItem expands into Quantity pour tasks. Tasks run strictly one at
// a time, in item order then unit order, because the kiosk has one shared
// liquid-handling fixture. A failed task never stops the order: the
// Scheduler moves on and returns one Result per task so the caller can
// reconcile what was delivered against what was paid for.
package dispense
