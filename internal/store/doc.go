// Package store provides SQLite-backed durable storage for the kiosk order
// log.
//
// Two tables are kept:
//   - orders: one row per frozen order, with its lines and fulfillment status
//   - pour_results: one row per pour task, written as each pour finishes
//
// The log exists for reconciliation: what the customer paid for against what
// was actually dispensed. Rows are append-only apart from the order status,
// which moves pending -> processing -> completed | partial | failed.
//
// # Ordering
//
// Orders carry a seq INTEGER assigned on insert; every multi-row query
// orders by seq, never by timestamp, so listings are stable across clock
// changes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
