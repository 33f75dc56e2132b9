package checkout

import "strings"

// State is a fulfillment state.
type State string

const (
	// StateSelecting is the open cart: lines may be added and removed.
	StateSelecting State = "selecting"
	// StateConsentPending waits for the customer to accept or decline the
	// alcohol terms for restricted lines.
	StateConsentPending State = "consent_pending"
	// StateAgeVerificationPending waits for the age verifier's verdict.
	StateAgeVerificationPending State = "age_verification_pending"
	// StatePaymentPending waits for the payment gateway. The cart is locked
	// from here on.
	StatePaymentPending State = "payment_pending"
	// StateDispensing holds the frozen order while its units are poured.
	StateDispensing State = "dispensing"
	// StateCompleted is terminal until a new order is started.
	StateCompleted State = "completed"
)

// Trigger is an external event fed to the state machine.
type Trigger string

const (
	// TriggerCheckout submits the cart; it moves to the first gate the cart
	// still has to pass.
	TriggerCheckout Trigger = "checkout"
	// TriggerConsentAccepted records consent for restricted lines.
	TriggerConsentAccepted Trigger = "consent_accepted"
	// TriggerConsentDeclined drops the restricted lines.
	TriggerConsentDeclined Trigger = "consent_declined"
	// TriggerAgePassed clears the age gate.
	TriggerAgePassed Trigger = "age_passed"
	// TriggerAgeFailed drops the restricted lines, like a declined consent.
	TriggerAgeFailed Trigger = "age_failed"
	// TriggerPaymentSettled freezes the order and starts dispensing.
	TriggerPaymentSettled Trigger = "payment_settled"
	// TriggerPaymentDeclined returns to selecting with the cart intact.
	TriggerPaymentDeclined Trigger = "payment_declined"
	// TriggerDispenseFinished completes the order once every unit has been
	// attempted.
	TriggerDispenseFinished Trigger = "dispense_finished"
	// TriggerNewOrder clears a completed order for the next customer.
	TriggerNewOrder Trigger = "new_order"
	// TriggerCancel empties the cart from any state before dispensing.
	TriggerCancel Trigger = "cancel"
)

// Triggers lists every trigger in declaration order.
func Triggers() []Trigger {
	return []Trigger{
		TriggerCheckout,
		TriggerConsentAccepted,
		TriggerConsentDeclined,
		TriggerAgePassed,
		TriggerAgeFailed,
		TriggerPaymentSettled,
		TriggerPaymentDeclined,
		TriggerDispenseFinished,
		TriggerNewOrder,
		TriggerCancel,
	}
}

// ParseTrigger maps a trigger name to a Trigger.
func ParseTrigger(s string) (Trigger, bool) {
	for _, t := range Triggers() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// GateState holds the gate flags of one checkout attempt. Flags only ever go
// from false to true; ResetGate on a new order or cancel is the only reset.
type GateState struct {
	ConsentGiven   bool `json:"consent_given"`
	AgeVerified    bool `json:"age_verified"`
	PaymentSettled bool `json:"payment_settled"`
}

// Cleared reports whether restricted lines may be paid for.
func (g GateState) Cleared() bool {
	return g.ConsentGiven && g.AgeVerified
}

// Effect is the cart and gate mutation attached to a transition. Effects
// apply in field order: RemoveRestricted, gate flags, FreezeOrder, then
// ClearCart and ResetGate.
type Effect struct {
	RemoveRestricted bool `json:"remove_restricted,omitempty"`
	GiveConsent      bool `json:"give_consent,omitempty"`
	VerifyAge        bool `json:"verify_age,omitempty"`
	SettlePayment    bool `json:"settle_payment,omitempty"`
	FreezeOrder      bool `json:"freeze_order,omitempty"`
	ClearCart        bool `json:"clear_cart,omitempty"`
	ResetGate        bool `json:"reset_gate,omitempty"`
}

// IsZero reports whether the effect changes nothing.
func (e Effect) IsZero() bool {
	return e == Effect{}
}

// String renders the effect as "none" or a '+'-joined list of names.
func (e Effect) String() string {
	var parts []string
	add := func(on bool, name string) {
		if on {
			parts = append(parts, name)
		}
	}
	add(e.RemoveRestricted, "remove_restricted")
	add(e.GiveConsent, "give_consent")
	add(e.VerifyAge, "verify_age")
	add(e.SettlePayment, "settle_payment")
	add(e.FreezeOrder, "freeze_order")
	add(e.ClearCart, "clear_cart")
	add(e.ResetGate, "reset_gate")
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Apply returns the cart and gate after the effect. The inputs are not
// modified. FreezeOrder is left to the caller.
func (e Effect) Apply(cart Cart, gate GateState) (Cart, GateState) {
	out := cart.Clone()
	if e.RemoveRestricted {
		out = out.WithoutRestricted()
	}
	if e.GiveConsent {
		gate.ConsentGiven = true
	}
	if e.VerifyAge {
		gate.AgeVerified = true
	}
	if e.SettlePayment {
		gate.PaymentSettled = true
	}
	if e.ClearCart {
		out = Cart{}
	}
	if e.ResetGate {
		gate = GateState{}
	}
	return out, gate
}

// Transition is the result of evaluating one trigger.
type Transition struct {
	From    State   `json:"from"`
	Trigger Trigger `json:"trigger"`
	To      State   `json:"to"`
	Effect  Effect  `json:"effect"`
}

// VerificationDenied reports whether the transition is a consent or age
// decline. A denial is a business outcome, not an error.
func (t Transition) VerificationDenied() bool {
	return t.Trigger == TriggerConsentDeclined || t.Trigger == TriggerAgeFailed
}
