package checkout

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/clock"
)

type featureContext struct {
	policy  Policy
	session *Session
	err     error
}

func (f *featureContext) reset() error {
	cat, err := catalog.NewMemory(cola, beer, water)
	if err != nil {
		return err
	}
	f.policy = DefaultPolicy()
	f.session = NewSession(cat, clock.NewManual(), WithIDGenerator(NewSequenceGenerator("order")))
	f.err = nil
	return nil
}

func (f *featureContext) alcoholIsDisabled() error {
	f.policy.EnableAlcohol = false
	f.session.policy = f.policy
	return nil
}

func (f *featureContext) theCustomerAdds(qty, ml int, id string) error {
	return f.session.AddItem(context.Background(), id, ml, qty)
}

func (f *featureContext) theCustomerTriesToAdd(qty, ml int, id string) error {
	f.err = f.session.AddItem(context.Background(), id, ml, qty)
	return nil
}

func (f *featureContext) fire(t Trigger) func() error {
	return func() error {
		_, err := f.session.Fire(context.Background(), t)
		return err
	}
}

func (f *featureContext) theKioskRejects(name string) error {
	t, ok := ParseTrigger(name)
	if !ok {
		return fmt.Errorf("unknown trigger %q", name)
	}
	if _, err := f.session.Fire(context.Background(), t); !IsInvalidTrigger(err) {
		return fmt.Errorf("expected %s to be rejected, got %v", name, err)
	}
	return nil
}

func (f *featureContext) theStateIs(want string) error {
	if got := f.session.State(); string(got) != want {
		return fmt.Errorf("state is %s, want %s", got, want)
	}
	return nil
}

func (f *featureContext) theCartIsEmpty() error {
	if c := f.session.Cart(); !c.Empty() {
		return fmt.Errorf("cart has %d lines", c.Len())
	}
	return nil
}

func (f *featureContext) theCartHasLines(n int) error {
	if got := f.session.Cart().Len(); got != n {
		return fmt.Errorf("cart has %d lines, want %d", got, n)
	}
	return nil
}

func (f *featureContext) theCartHolds(qty, ml int, id string) error {
	l, ok := f.session.Cart().Line(id, ml)
	if !ok {
		return fmt.Errorf("no %d ml %s line", ml, id)
	}
	if l.Quantity != qty {
		return fmt.Errorf("%s quantity is %d, want %d", id, l.Quantity, qty)
	}
	return nil
}

func (f *featureContext) consentIs(state string) error {
	want := state == "given"
	if got := f.session.Gate().ConsentGiven; got != want {
		return fmt.Errorf("consent given is %v, want %v", got, want)
	}
	return nil
}

func (f *featureContext) theOrderContainsLines(n int) error {
	o, ok := f.session.Order()
	if !ok {
		return fmt.Errorf("no order frozen")
	}
	if len(o.Lines) != n {
		return fmt.Errorf("order has %d lines, want %d", len(o.Lines), n)
	}
	return nil
}

func (f *featureContext) theAddIsRejectedWith(code string) error {
	if got := CodeOf(f.err); string(got) != code {
		return fmt.Errorf("error code is %q, want %q (err=%v)", got, code, f.err)
	}
	return nil
}

func initializeScenario(ctx *godog.ScenarioContext) {
	f := &featureContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, f.reset()
	})

	ctx.Step(`^alcohol is disabled$`, f.alcoholIsDisabled)
	ctx.Step(`^the customer adds (\d+) x (\d+) ml "([^"]*)"$`, f.theCustomerAdds)
	ctx.Step(`^the customer tries to add (\d+) x (\d+) ml "([^"]*)"$`, f.theCustomerTriesToAdd)

	ctx.Step(`^the customer checks out$`, f.fire(TriggerCheckout))
	ctx.Step(`^the customer accepts consent$`, f.fire(TriggerConsentAccepted))
	ctx.Step(`^the customer declines consent$`, f.fire(TriggerConsentDeclined))
	ctx.Step(`^the customer passes the age check$`, f.fire(TriggerAgePassed))
	ctx.Step(`^the customer fails the age check$`, f.fire(TriggerAgeFailed))
	ctx.Step(`^the customer pays$`, f.fire(TriggerPaymentSettled))
	ctx.Step(`^dispensing finishes$`, f.fire(TriggerDispenseFinished))
	ctx.Step(`^the customer starts a new order$`, f.fire(TriggerNewOrder))
	ctx.Step(`^the kiosk rejects "([^"]*)"$`, f.theKioskRejects)

	ctx.Step(`^the state is "([^"]*)"$`, f.theStateIs)
	ctx.Step(`^the cart is empty$`, f.theCartIsEmpty)
	ctx.Step(`^the cart has (\d+) lines?$`, f.theCartHasLines)
	ctx.Step(`^the cart holds (\d+) x (\d+) ml "([^"]*)"$`, f.theCartHolds)
	ctx.Step(`^consent is (given|not given)$`, f.consentIs)
	ctx.Step(`^the order contains (\d+) lines?$`, f.theOrderContainsLines)
	ctx.Step(`^the add is rejected with "([^"]*)"$`, f.theAddIsRejectedWith)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
