package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/clock"
)

// DefaultCurrency is the ISO 4217 code orders are priced in.
const DefaultCurrency = "EUR"

// Session is the mutable checkout state of one kiosk: the cart, the gate
// flags, the current State and the frozen Order once payment has settled.
//
// Every mutation either fully applies or returns an error and leaves the
// session untouched. Cart mutations are only accepted in StateSelecting.
//
// Thread-safety: All methods are safe for concurrent use.
type Session struct {
	beverages catalog.Catalog
	clk       clock.Clock
	ids       IDGenerator
	policy    Policy
	currency  string

	mu    sync.Mutex
	state State
	cart  Cart
	gate  GateState
	order *Order
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPolicy sets the cart rules.
func WithPolicy(p Policy) SessionOption {
	return func(s *Session) { s.policy = p }
}

// WithCurrency sets the currency code stamped on orders.
func WithCurrency(code string) SessionOption {
	return func(s *Session) { s.currency = code }
}

// WithIDGenerator sets the order ID source.
func WithIDGenerator(g IDGenerator) SessionOption {
	return func(s *Session) { s.ids = g }
}

// NewSession creates a session in StateSelecting with an empty cart.
func NewSession(beverages catalog.Catalog, clk clock.Clock, opts ...SessionOption) *Session {
	s := &Session{
		beverages: beverages,
		clk:       clk,
		ids:       UUIDv7Generator{},
		policy:    DefaultPolicy(),
		currency:  DefaultCurrency,
		state:     StateSelecting,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	State State           `json:"state"`
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
	Gate  GateState       `json:"gate"`
	Order *Order          `json:"order,omitempty"`
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State: s.state,
		Lines: s.cart.Lines(),
		Total: s.cart.Total(),
		Gate:  s.gate,
	}
	if s.order != nil {
		o := s.order.clone()
		snap.Order = &o
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cart returns a copy of the cart.
func (s *Session) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Gate returns the gate flags.
func (s *Session) Gate() GateState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate
}

// Order returns the frozen order, if payment has settled.
func (s *Session) Order() (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		return Order{}, false
	}
	return s.order.clone(), true
}

// PaymentRequest returns the amount to charge for the current cart.
func (s *Session) PaymentRequest() PaymentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PaymentRequest{Amount: s.cart.Total(), Currency: s.currency, Units: s.cart.Units()}
}

// AddItem adds qty units of a beverage at volumeMl.
func (s *Session) AddItem(ctx context.Context, beverageID string, volumeMl, qty int) error {
	return s.mutateCart(ctx, beverageID, func(c *Cart, b catalog.Beverage) error {
		return c.Add(b, volumeMl, qty, s.policy)
	})
}

// SetQuantity sets the quantity of a line; zero removes it.
func (s *Session) SetQuantity(ctx context.Context, beverageID string, volumeMl, qty int) error {
	return s.mutateCart(ctx, beverageID, func(c *Cart, b catalog.Beverage) error {
		return c.SetQuantity(b, volumeMl, qty, s.policy)
	})
}

// RemoveItem removes a line. Removing a missing line is not an error.
func (s *Session) RemoveItem(beverageID string, volumeMl int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSelecting(); err != nil {
		return err
	}
	s.cart.Remove(beverageID, volumeMl)
	return nil
}

func (s *Session) mutateCart(ctx context.Context, beverageID string, fn func(*Cart, catalog.Beverage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSelecting(); err != nil {
		return err
	}
	b, err := s.beverages.Beverage(ctx, beverageID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return &Error{Code: ErrCodeUnknownBeverage, BeverageID: beverageID, Message: "no such beverage"}
		}
		return err
	}
	next := s.cart.Clone()
	if err := fn(&next, b); err != nil {
		return err
	}
	s.cart = next
	return nil
}

func (s *Session) requireSelecting() error {
	if s.state != StateSelecting {
		return &Error{Code: ErrCodeCartLocked, Message: "the cart can only change while selecting", State: s.state}
	}
	return nil
}

// Fire evaluates t against the session and applies the resulting effect.
// On error the session is unchanged.
func (s *Session) Fire(ctx context.Context, t Trigger) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, err := Evaluate(s.state, s.cart, s.gate, t)
	if err != nil {
		return Transition{}, err
	}

	cart, gate := tr.Effect.Apply(s.cart, s.gate)
	if tr.Effect.FreezeOrder {
		s.order = s.freeze(ctx, cart, gate)
	}
	if tr.Effect.ResetGate {
		s.order = nil
	}
	s.cart, s.gate, s.state = cart, gate, tr.To

	slog.Info("checkout transition",
		"from", tr.From,
		"trigger", tr.Trigger,
		"to", tr.To,
		"effect", tr.Effect.String())
	return tr, nil
}

// freeze snapshots the cart into an Order and takes the ordered liquid out
// of stock. A failed withdrawal is logged; the customer has already paid.
func (s *Session) freeze(ctx context.Context, cart Cart, gate GateState) *Order {
	o := &Order{
		ID:           s.ids.Generate(),
		Lines:        cart.Lines(),
		Total:        cart.Total(),
		Currency:     s.currency,
		ConsentGiven: gate.ConsentGiven,
		AgeVerified:  gate.AgeVerified,
		CreatedAt:    s.clk.Now(),
	}
	for _, l := range o.Lines {
		if err := s.beverages.Withdraw(ctx, l.BeverageID, l.VolumeMl*l.Quantity); err != nil {
			slog.Warn("stock withdrawal failed", "order", o.ID, "beverage", l.BeverageID, "error", err)
		}
	}
	slog.Info("order frozen", "order", o.ID, "lines", len(o.Lines), "total", o.Total.StringFixed(2), "currency", o.Currency)
	return o
}
