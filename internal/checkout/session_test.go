package checkout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/dispense"
)

func fire(t *testing.T, s *Session, triggers ...Trigger) {
	t.Helper()
	for _, trig := range triggers {
		_, err := s.Fire(context.Background(), trig)
		require.NoError(t, err, "trigger %s", trig)
	}
}

func TestSession_ConsentDeclineWithOnlyRestrictedLine(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.AddItem(context.Background(), "beer", 500, 1))

	fire(t, s, TriggerCheckout, TriggerConsentDeclined)

	assert.Equal(t, StateSelecting, s.State())
	assert.True(t, s.Cart().Empty())
	assert.False(t, s.Gate().ConsentGiven)
	_, ok := s.Order()
	assert.False(t, ok)
}

func TestSession_FullGateFreezesBothLines(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "beer", 500, 1))
	require.NoError(t, s.AddItem(ctx, "cola", 300, 1))

	fire(t, s, TriggerCheckout, TriggerConsentAccepted, TriggerAgePassed, TriggerPaymentSettled)

	assert.Equal(t, StateDispensing, s.State())
	assert.Equal(t, GateState{ConsentGiven: true, AgeVerified: true, PaymentSettled: true}, s.Gate())

	o, ok := s.Order()
	require.True(t, ok)
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, clock.Epoch, o.CreatedAt)
	assert.True(t, o.ConsentGiven)
	assert.True(t, o.AgeVerified)
	assert.True(t, decimal.RequireFromString("7.50").Equal(o.Total), "6.00 + 1.50")
	assert.Equal(t, []dispense.OrderItem{
		{BeverageID: "beer", VolumeMl: 500, Quantity: 1},
		{BeverageID: "cola", VolumeMl: 300, Quantity: 1},
	}, o.Items())
}

func TestSession_AgeFailureKeepsUnrestricted(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "beer", 300, 2))
	require.NoError(t, s.AddItem(ctx, "cola", 500, 1))

	fire(t, s, TriggerCheckout, TriggerConsentAccepted, TriggerAgeFailed)

	assert.Equal(t, StatePaymentPending, s.State())
	lines := s.Cart().Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "cola", lines[0].BeverageID)
	assert.True(t, s.Gate().ConsentGiven)
	assert.False(t, s.Gate().AgeVerified)

	fire(t, s, TriggerPaymentSettled)
	o, _ := s.Order()
	assert.Equal(t, 1, o.Units())
	assert.False(t, o.AgeVerified)
}

func TestSession_CartLockedOutsideSelecting(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "cola", 300, 1))
	fire(t, s, TriggerCheckout)
	require.Equal(t, StatePaymentPending, s.State())

	assert.True(t, IsCartLocked(s.AddItem(ctx, "cola", 300, 1)))
	assert.True(t, IsCartLocked(s.SetQuantity(ctx, "cola", 300, 2)))
	assert.True(t, IsCartLocked(s.RemoveItem("cola", 300)))
	assert.Equal(t, 1, s.Cart().Units())
}

func TestSession_OrderIsFrozen(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "cola", 300, 2))
	fire(t, s, TriggerCheckout, TriggerPaymentSettled)

	o, _ := s.Order()
	o.Lines[0].Quantity = 50

	again, _ := s.Order()
	assert.Equal(t, 2, again.Lines[0].Quantity, "callers get copies")

	fire(t, s, TriggerDispenseFinished, TriggerNewOrder)
	assert.Equal(t, StateSelecting, s.State())
	assert.True(t, s.Cart().Empty())
	assert.Equal(t, GateState{}, s.Gate())
	_, ok := s.Order()
	assert.False(t, ok)
	assert.Equal(t, 2, again.Lines[0].Quantity)
}

func TestSession_FreezeWithdrawsStock(t *testing.T) {
	s, cat := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "cola", 500, 2))
	fire(t, s, TriggerCheckout, TriggerPaymentSettled)

	b, err := cat.Beverage(ctx, "cola")
	require.NoError(t, err)
	assert.Equal(t, 4000, b.StockMl)
}

func TestSession_FailedTriggerChangesNothing(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.AddItem(context.Background(), "cola", 300, 1))
	before := s.Snapshot()

	_, err := s.Fire(context.Background(), TriggerPaymentSettled)
	require.Error(t, err)
	assert.True(t, IsInvalidTrigger(err))
	assert.Equal(t, before, s.Snapshot())
}

func TestSession_UnknownBeverage(t *testing.T) {
	s, _ := newSession(t)
	err := s.AddItem(context.Background(), "lemonade", 300, 1)
	assert.Equal(t, ErrCodeUnknownBeverage, CodeOf(err))
}

func TestSession_PolicyAndCurrency(t *testing.T) {
	s, _ := newSession(t, WithPolicy(Policy{MaxItems: 1}), WithCurrency("CZK"))
	ctx := context.Background()

	assert.Equal(t, ErrCodeAlcoholDisabled, CodeOf(s.AddItem(ctx, "beer", 300, 1)))
	require.NoError(t, s.AddItem(ctx, "cola", 300, 1))
	assert.Equal(t, ErrCodeTooManyItems, CodeOf(s.AddItem(ctx, "water", 300, 1)))

	req := s.PaymentRequest()
	assert.Equal(t, "CZK", req.Currency)
	assert.Equal(t, 1, req.Units)
	assert.True(t, decimal.RequireFromString("1.50").Equal(req.Amount))
}

func TestSession_CancelResets(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.AddItem(context.Background(), "beer", 300, 1))
	fire(t, s, TriggerCheckout, TriggerConsentAccepted, TriggerCancel)

	assert.Equal(t, StateSelecting, s.State())
	assert.True(t, s.Cart().Empty())
	assert.Equal(t, GateState{}, s.Gate())
}

func TestSession_PaymentDeclinedKeepsCart(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.AddItem(context.Background(), "cola", 300, 1))
	fire(t, s, TriggerCheckout, TriggerPaymentDeclined)

	assert.Equal(t, StateSelecting, s.State())
	assert.Equal(t, 1, s.Cart().Units())
}
