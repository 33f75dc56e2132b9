// Package checkout implements the order fulfillment state machine.
//
// The machine moves a customer from selecting drinks to dispensing them:
//
//	Selecting -> ConsentPending -> AgeVerificationPending -> PaymentPending -> Dispensing -> Completed
//
// Restricted (alcoholic) lines force the consent and age gates; declining
// either gate strips every restricted line from the cart and, when anything
// is left, continues straight to payment.
//
// Evaluate is the pure core: given a state, the cart, the gate flags and a
// trigger it returns the next state and the cart effect, or an error for a
// trigger that is not valid in that state. It never talks to hardware.
// Session holds the mutable cart and gate flags for one kiosk, applies the
// effects Evaluate decides on, and freezes the cart into an immutable Order
// when payment settles.
package checkout
