package store

import (
	"errors"
	"fmt"

	"github.com/roach88/pourkiosk/internal/dispense"
)

// Status is the fulfillment status of a logged order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// Final reports whether no further status change is allowed.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// StatusFor maps a dispense verdict onto a final order status.
func StatusFor(f dispense.Fulfillment) Status {
	switch f {
	case dispense.FulfillmentFull:
		return StatusCompleted
	case dispense.FulfillmentFailed:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrInvalidStatus is returned for a status change the lifecycle forbids.
var ErrInvalidStatus = errors.New("invalid status transition")

func checkTransition(from, to Status) error {
	ok := false
	switch from {
	case StatusPending:
		ok = to == StatusProcessing || to.Final()
	case StatusProcessing:
		ok = to.Final()
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
	}
	return nil
}
