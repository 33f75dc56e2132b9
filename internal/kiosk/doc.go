// Package kiosk runs one kiosk: a single-writer loop that owns the checkout
// session, asks the age verifier and payment gateway when the customer
// reaches those gates, hands each settled order to the dispense scheduler,
// records the outcome in the store and publishes telemetry.
//
// Commands from the UI (or the CLI's JSON-lines stream) are queued and
// processed strictly one at a time, so there is at most one active order.
// EmergencyStop is the only operation that bypasses the queue.
package kiosk
