package checkout

// Evaluate decides the transition for trigger t from state s.
//
// It is pure: the cart and gate are only read. A trigger with no row in the
// transition table for s yields an INVALID_TRIGGER error.
func Evaluate(s State, cart Cart, gate GateState, t Trigger) (Transition, error) {
	tr := Transition{From: s, Trigger: t}

	switch {
	case t == TriggerCancel && s != StateDispensing && s != StateCompleted:
		tr.To = StateSelecting
		tr.Effect = Effect{ClearCart: true, ResetGate: true}
		return tr, nil

	case s == StateSelecting && t == TriggerCheckout:
		tr.To = checkoutTarget(cart, gate)
		return tr, nil

	case s == StateConsentPending && t == TriggerConsentAccepted:
		tr.To = StateAgeVerificationPending
		tr.Effect = Effect{GiveConsent: true}
		return tr, nil

	case s == StateConsentPending && t == TriggerConsentDeclined,
		s == StateAgeVerificationPending && t == TriggerAgeFailed:
		tr.Effect = Effect{RemoveRestricted: true}
		tr.To = StateSelecting
		if !cart.WithoutRestricted().Empty() {
			tr.To = StatePaymentPending
		}
		return tr, nil

	case s == StateAgeVerificationPending && t == TriggerAgePassed:
		tr.To = StatePaymentPending
		tr.Effect = Effect{VerifyAge: true}
		return tr, nil

	case s == StatePaymentPending && t == TriggerPaymentSettled:
		if cart.HasRestricted() && !gate.Cleared() {
			return Transition{}, &Error{
				Code:    ErrCodeGateViolation,
				Message: "restricted lines need consent and age verification before payment",
				State:   s,
				Trigger: t,
			}
		}
		tr.To = StateDispensing
		tr.Effect = Effect{SettlePayment: true, FreezeOrder: true}
		return tr, nil

	case s == StatePaymentPending && t == TriggerPaymentDeclined:
		tr.To = StateSelecting
		return tr, nil

	case s == StateDispensing && t == TriggerDispenseFinished:
		tr.To = StateCompleted
		return tr, nil

	case s == StateCompleted && t == TriggerNewOrder:
		tr.To = StateSelecting
		tr.Effect = Effect{ClearCart: true, ResetGate: true}
		return tr, nil
	}

	return Transition{}, invalidTrigger(s, t)
}

// checkoutTarget picks the first gate the cart still has to pass.
func checkoutTarget(cart Cart, gate GateState) State {
	switch {
	case cart.Empty():
		return StateSelecting
	case !cart.HasRestricted():
		return StatePaymentPending
	case !gate.ConsentGiven:
		return StateConsentPending
	case !gate.AgeVerified:
		return StateAgeVerificationPending
	default:
		return StatePaymentPending
	}
}
