package checkout

import (
	"errors"
	"fmt"
)

// ErrorCode categorises checkout errors.
type ErrorCode string

const (
	// ErrCodeInvalidTrigger indicates a trigger that has no transition from
	// the current state.
	ErrCodeInvalidTrigger ErrorCode = "INVALID_TRIGGER"

	// ErrCodeCartLocked indicates a cart mutation outside the Selecting state.
	ErrCodeCartLocked ErrorCode = "CART_LOCKED"

	// ErrCodeGateViolation indicates payment would settle for restricted
	// lines without consent and age verification.
	ErrCodeGateViolation ErrorCode = "GATE_VIOLATION"

	// ErrCodeInvalidVolume indicates a volume the beverage is not sold in.
	ErrCodeInvalidVolume ErrorCode = "INVALID_VOLUME"

	// ErrCodeInvalidQuantity indicates a negative quantity, or zero on add.
	ErrCodeInvalidQuantity ErrorCode = "INVALID_QUANTITY"

	// ErrCodeInsufficientStock indicates the cart would need more liquid than
	// the beverage has left.
	ErrCodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"

	// ErrCodeTooManyItems indicates the cart would exceed the unit limit.
	ErrCodeTooManyItems ErrorCode = "TOO_MANY_ITEMS"

	// ErrCodeAlcoholDisabled indicates a restricted beverage on a kiosk that
	// does not sell alcohol.
	ErrCodeAlcoholDisabled ErrorCode = "ALCOHOL_DISABLED"

	// ErrCodeUnknownBeverage indicates a beverage ID the catalog does not know.
	ErrCodeUnknownBeverage ErrorCode = "UNKNOWN_BEVERAGE"
)

// Error is a checkout failure. Failures never change the session.
type Error struct {
	Code       ErrorCode
	Message    string
	State      State
	Trigger    Trigger
	BeverageID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Trigger != "":
		return fmt.Sprintf("%s: %s (state=%s, trigger=%s)", e.Code, e.Message, e.State, e.Trigger)
	case e.BeverageID != "":
		return fmt.Sprintf("%s: %s (beverage=%s)", e.Code, e.Message, e.BeverageID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// CodeOf returns the code of a checkout error, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsInvalidTrigger reports whether err rejects a trigger.
func IsInvalidTrigger(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTrigger
}

// IsCartLocked reports whether err rejects a cart mutation.
func IsCartLocked(err error) bool {
	return CodeOf(err) == ErrCodeCartLocked
}

func invalidTrigger(s State, t Trigger) *Error {
	return &Error{Code: ErrCodeInvalidTrigger, Message: "trigger not valid in this state", State: s, Trigger: t}
}

func cartError(code ErrorCode, beverageID, format string, args ...any) *Error {
	return &Error{Code: code, BeverageID: beverageID, Message: fmt.Sprintf(format, args...)}
}
