package pour

import (
	"errors"
	"fmt"
)

// ErrorCode categorises errors returned by Pour.
type ErrorCode string

const (
	// ErrCodeAlreadyInUse indicates the valve is owned by another pour.
	// Callers should not retry immediately: a busy valve may be stuck open.
	ErrCodeAlreadyInUse ErrorCode = "ALREADY_IN_USE"

	// ErrCodeInvalidTarget indicates a non-positive or non-finite target.
	ErrCodeInvalidTarget ErrorCode = "INVALID_TARGET"

	// ErrCodeStopped indicates an emergency stop is in force.
	ErrCodeStopped ErrorCode = "STOPPED"
)

// Error is returned when a pour could not start.
type Error struct {
	Code    ErrorCode
	ValveID string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ValveID != "" {
		return fmt.Sprintf("%s: %s (valve=%s)", e.Code, e.Message, e.ValveID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsAlreadyInUse reports whether err is a valve contention error.
// Uses errors.As to handle wrapped errors.
func IsAlreadyInUse(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeAlreadyInUse
	}
	return false
}

// IsStopped reports whether err was caused by an emergency stop.
func IsStopped(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeStopped
	}
	return false
}

func newAlreadyInUse(valveID string) *Error {
	return &Error{Code: ErrCodeAlreadyInUse, ValveID: valveID, Message: "valve is already pouring"}
}

func newInvalidTarget(valveID string, target float64) *Error {
	return &Error{Code: ErrCodeInvalidTarget, ValveID: valveID, Message: fmt.Sprintf("invalid target volume %v", target)}
}

func newStopped(valveID string) *Error {
	return &Error{Code: ErrCodeStopped, ValveID: valveID, Message: "emergency stop in force"}
}
