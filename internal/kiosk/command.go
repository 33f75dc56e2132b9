package kiosk

import (
	"fmt"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/dispense"
)

// CommandKind names what a customer or operator asked the kiosk to do.
type CommandKind string

const (
	CmdSnapshot    CommandKind = "snapshot"
	CmdAdd         CommandKind = "add"
	CmdSetQuantity CommandKind = "set_quantity"
	CmdRemove      CommandKind = "remove"
	CmdCheckout    CommandKind = "checkout"
	CmdConsent     CommandKind = "consent"
	CmdVerifyAge   CommandKind = "verify_age"
	CmdPay         CommandKind = "pay"
	CmdNewOrder    CommandKind = "new_order"
	CmdCancel      CommandKind = "cancel"
)

// Operator commands act on the hardware directly and never enter the loop.
// Callers route them to EmergencyStop, Resume and Hardware; Do rejects them.
const (
	CmdEmergencyStop CommandKind = "emergency_stop"
	CmdResume        CommandKind = "resume"
	CmdStatus        CommandKind = "status"
)

// Operator reports whether k bypasses the loop.
func (k CommandKind) Operator() bool {
	return k == CmdEmergencyStop || k == CmdResume || k == CmdStatus
}

// Command is one request to the kiosk loop. Only the fields relevant to
// Kind are read.
type Command struct {
	Kind       CommandKind `json:"cmd" yaml:"cmd"`
	BeverageID string      `json:"beverage_id,omitempty" yaml:"beverage_id,omitempty"`
	VolumeMl   int         `json:"volume_ml,omitempty" yaml:"volume_ml,omitempty"`
	// Quantity defaults to 1 for add.
	Quantity int `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	// Accept answers the consent prompt.
	Accept bool `json:"accept,omitempty" yaml:"accept,omitempty"`
	// Image is the capture handed to the age verifier.
	Image []byte `json:"image,omitempty" yaml:"image,omitempty"`
}

// Validate checks that Kind is known and its fields are present.
func (c Command) Validate() error {
	switch c.Kind {
	case CmdAdd, CmdSetQuantity, CmdRemove:
		if c.BeverageID == "" {
			return fmt.Errorf("%s: beverage_id is required", c.Kind)
		}
		if c.VolumeMl <= 0 {
			return fmt.Errorf("%s: volume_ml must be positive", c.Kind)
		}
	case CmdSnapshot, CmdCheckout, CmdConsent, CmdVerifyAge, CmdPay, CmdNewOrder, CmdCancel:
	case CmdEmergencyStop, CmdResume, CmdStatus:
		return fmt.Errorf("%s is an operator command", c.Kind)
	default:
		return fmt.Errorf("unknown command %q", c.Kind)
	}
	return nil
}

func (c Command) String() string {
	switch c.Kind {
	case CmdAdd, CmdSetQuantity:
		return fmt.Sprintf("%s %s %dml x%d", c.Kind, c.BeverageID, c.VolumeMl, c.Quantity)
	case CmdRemove:
		return fmt.Sprintf("%s %s %dml", c.Kind, c.BeverageID, c.VolumeMl)
	case CmdConsent:
		return fmt.Sprintf("%s accept=%t", c.Kind, c.Accept)
	default:
		return string(c.Kind)
	}
}

// Reply is what the loop hands back for a command.
type Reply struct {
	checkout.Snapshot

	// Transitions lists the state changes the command caused, in order. A
	// pay command that settles records payment_settled and dispense_finished.
	Transitions []checkout.Transition `json:"transitions,omitempty"`

	// Results and Report are set when the command dispensed an order.
	Results []dispense.Result `json:"results,omitempty"`
	Report  *dispense.Report  `json:"report,omitempty"`
}
