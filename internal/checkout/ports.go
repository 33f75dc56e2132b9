package checkout

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultVerificationTimeout bounds every call to a verifier or gateway.
const DefaultVerificationTimeout = 10 * time.Second

// ErrVerificationDenied is returned by the simulated ports when configured
// to decline with an error.
var ErrVerificationDenied = errors.New("verification denied")

// AgeVerifier checks the customer's age from a captured image.
type AgeVerifier interface {
	Verify(ctx context.Context, image []byte) (bool, error)
}

// PaymentRequest is what the gateway is asked to charge.
type PaymentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Units    int             `json:"units"`
}

// PaymentGateway settles a payment.
type PaymentGateway interface {
	Settle(ctx context.Context, req PaymentRequest) (bool, error)
}

// CheckAge asks v and maps the answer onto a trigger. Errors and timeouts
// are declines, never silent passes.
func CheckAge(ctx context.Context, v AgeVerifier, image []byte, timeout time.Duration) Trigger {
	ok, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (bool, error) {
		return v.Verify(ctx, image)
	})
	if err != nil {
		slog.Warn("age verification failed, treating as decline", "error", err)
		return TriggerAgeFailed
	}
	if !ok {
		return TriggerAgeFailed
	}
	return TriggerAgePassed
}

// Settle asks g to charge req and maps the answer onto a trigger. Errors and
// timeouts are declines.
func Settle(ctx context.Context, g PaymentGateway, req PaymentRequest, timeout time.Duration) Trigger {
	ok, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (bool, error) {
		return g.Settle(ctx, req)
	})
	if err != nil {
		slog.Warn("payment failed, treating as decline", "amount", req.Amount.StringFixed(2), "error", err)
		return TriggerPaymentDeclined
	}
	if !ok {
		return TriggerPaymentDeclined
	}
	return TriggerPaymentSettled
}

// callWithTimeout runs fn under a deadline. A port that ignores its context
// is abandoned when the deadline passes.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) (bool, error)) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultVerificationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ok, err := fn(ctx)
		done <- answer{ok, err}
	}()

	select {
	case a := <-done:
		return a.ok, a.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// SimAgeVerifier answers with a fixed decision.
type SimAgeVerifier struct {
	Approve bool
	Err     error
	Delay   time.Duration
}

// Verify implements AgeVerifier.
func (v SimAgeVerifier) Verify(ctx context.Context, _ []byte) (bool, error) {
	if err := simWait(ctx, v.Delay); err != nil {
		return false, err
	}
	return v.Approve, v.Err
}

// SimPaymentGateway answers with a fixed decision and records every request.
type SimPaymentGateway struct {
	Approve bool
	Err     error
	Delay   time.Duration

	mu       sync.Mutex
	requests []PaymentRequest
}

// Settle implements PaymentGateway.
func (g *SimPaymentGateway) Settle(ctx context.Context, req PaymentRequest) (bool, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if err := simWait(ctx, g.Delay); err != nil {
		return false, err
	}
	return g.Approve, g.Err
}

// Requests returns every request seen so far.
func (g *SimPaymentGateway) Requests() []PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.requests)
}

func simWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
