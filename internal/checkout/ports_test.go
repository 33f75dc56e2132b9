package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAge(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, TriggerAgePassed, CheckAge(ctx, SimAgeVerifier{Approve: true}, nil, time.Second))
	assert.Equal(t, TriggerAgeFailed, CheckAge(ctx, SimAgeVerifier{Approve: false}, nil, time.Second))
	assert.Equal(t, TriggerAgeFailed, CheckAge(ctx, SimAgeVerifier{Approve: true, Err: errors.New("service down")}, nil, time.Second),
		"an error is a decline even when the answer says yes")
	assert.Equal(t, TriggerAgeFailed, CheckAge(ctx, SimAgeVerifier{Approve: true, Delay: time.Second}, nil, 10*time.Millisecond),
		"a timeout is a decline")
}

type stuckVerifier struct{ release chan struct{} }

func (v stuckVerifier) Verify(context.Context, []byte) (bool, error) {
	<-v.release
	return true, nil
}

func TestCheckAge_AbandonsPortIgnoringContext(t *testing.T) {
	v := stuckVerifier{release: make(chan struct{})}
	defer close(v.release)

	assert.Equal(t, TriggerAgeFailed, CheckAge(context.Background(), v, nil, 10*time.Millisecond))
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	req := PaymentRequest{Amount: decimal.RequireFromString("4.50"), Currency: "EUR", Units: 2}

	gw := &SimPaymentGateway{Approve: true}
	assert.Equal(t, TriggerPaymentSettled, Settle(ctx, gw, req, time.Second))
	require.Len(t, gw.Requests(), 1)
	assert.True(t, req.Amount.Equal(gw.Requests()[0].Amount))

	assert.Equal(t, TriggerPaymentDeclined, Settle(ctx, &SimPaymentGateway{}, req, time.Second))
	assert.Equal(t, TriggerPaymentDeclined, Settle(ctx, &SimPaymentGateway{Approve: true, Err: ErrVerificationDenied}, req, time.Second))
	assert.Equal(t, TriggerPaymentDeclined, Settle(ctx, &SimPaymentGateway{Approve: true, Delay: time.Second}, req, 10*time.Millisecond))
}

func TestIDGenerators(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	seq := NewSequenceGenerator("order")
	assert.Equal(t, "order-1", seq.Generate())
	assert.Equal(t, "order-2", seq.Generate())

	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, UUIDv7Generator{}.Generate())
}
