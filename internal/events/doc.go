// Package events publishes kiosk telemetry: state transitions, order status
// changes, pour progress and pour results.
//
// Publishing is best effort. The kiosk logs a failed publish and carries
// on; telemetry never blocks or fails a pour.
package events
