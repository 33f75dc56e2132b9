package hw

import (
	"errors"
	"fmt"
)

// ErrorCode categorises hardware errors.
type ErrorCode string

const (
	// ErrCodeInitFailed indicates the backend could not be initialised
	// (missing driver, missing permissions, unknown pin at start-up).
	ErrCodeInitFailed ErrorCode = "INIT_FAILED"

	// ErrCodeIO indicates a read or write on an initialised line failed.
	ErrCodeIO ErrorCode = "IO_FAILED"

	// ErrCodeUnknownPin indicates a handle was requested for a pin the
	// backend does not own.
	ErrCodeUnknownPin ErrorCode = "UNKNOWN_PIN"
)

// Error is a hardware error with the pin and operation that produced it.
type Error struct {
	Code ErrorCode
	Pin  string
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Pin != "" {
		msg += fmt.Sprintf(" (pin=%s)", e.Pin)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying driver error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsInitError reports whether err is a construction-time failure.
func IsInitError(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == ErrCodeInitFailed
	}
	return false
}

// IsUnknownPin reports whether err names a pin the backend does not own.
func IsUnknownPin(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == ErrCodeUnknownPin
	}
	return false
}

// ErrInjected is returned by simulated handles when a fault has been injected.
var ErrInjected = errors.New("injected fault")
