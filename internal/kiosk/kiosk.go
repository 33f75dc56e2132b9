package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/config"
	"github.com/roach88/pourkiosk/internal/dispense"
	"github.com/roach88/pourkiosk/internal/events"
	"github.com/roach88/pourkiosk/internal/hw"
	"github.com/roach88/pourkiosk/internal/pour"
	"github.com/roach88/pourkiosk/internal/store"
)

var (
	// ErrStopped is returned by Do once the loop has stopped.
	ErrStopped = errors.New("kiosk stopped")

	// ErrHalted is returned for pay while an emergency stop is in force.
	// No payment is taken.
	ErrHalted = errors.New("kiosk halted by emergency stop")
)

// Kiosk wires the checkout session to the dispensing engine.
//
// Thread-safety: Do, EmergencyStop, Resume, Hardware and Stop are safe from
// any goroutine. Run must be called from exactly one goroutine; every
// session change, store write and pour happens there.
type Kiosk struct {
	id      string
	lang    language.Tag
	clk     clock.Clock
	backend hw.Backend
	timeout time.Duration

	session   *checkout.Session
	scheduler *dispense.Scheduler
	store     *store.Store
	pub       events.Publisher
	age       checkout.AgeVerifier
	payments  checkout.PaymentGateway

	queue *commandQueue

	mu     sync.Mutex
	active string // order being dispensed, "" when idle
}

type options struct {
	store    *store.Store
	pub      events.Publisher
	age      checkout.AgeVerifier
	payments checkout.PaymentGateway
	ids      checkout.IDGenerator
}

// Option configures a Kiosk.
type Option func(*options)

// WithStore records every order and pour result in s.
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithPublisher sends telemetry to p. The default discards it.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.pub = p }
}

// WithAgeVerifier replaces the simulated age verifier.
func WithAgeVerifier(v checkout.AgeVerifier) Option {
	return func(o *options) { o.age = v }
}

// WithPaymentGateway replaces the simulated payment gateway.
func WithPaymentGateway(g checkout.PaymentGateway) Option {
	return func(o *options) { o.payments = g }
}

// WithIDGenerator sets the order ID generator (tests use FixedGenerator).
func WithIDGenerator(g checkout.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// New builds a kiosk from cfg. Without WithAgeVerifier and
// WithPaymentGateway the simulated ports answer according to
// cfg.Verification.
func New(cfg config.Config, cat catalog.Catalog, backend hw.Backend, clk clock.Clock, opts ...Option) (*Kiosk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{
		pub:      events.Nop{},
		age:      checkout.SimAgeVerifier{Approve: cfg.Verification.SimApproveAge},
		payments: &checkout.SimPaymentGateway{Approve: cfg.Verification.SimApprovePayment},
		ids:      checkout.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	k := &Kiosk{
		id:       cfg.Kiosk.ID,
		lang:     cfg.LanguageTag(),
		clk:      clk,
		backend:  backend,
		timeout:  cfg.Verification.Timeout.D(),
		store:    o.store,
		pub:      o.pub,
		age:      o.age,
		payments: o.payments,
		queue:    newCommandQueue(),
	}

	ctrl, err := pour.New(clk, cfg.PourConfig(), pour.WithProgress(k.publishProgress))
	if err != nil {
		return nil, err
	}
	k.scheduler = dispense.NewScheduler(ctrl, backend, cat,
		dispense.WithFaultRetries(cfg.Dispense.FaultRetries),
		dispense.WithResultHook(k.recordResult),
	)
	k.session = checkout.NewSession(cat, clk,
		checkout.WithPolicy(cfg.Policy()),
		checkout.WithCurrency(cfg.Kiosk.Currency),
		checkout.WithIDGenerator(o.ids),
	)
	return k, nil
}

// Do queues cmd and waits for the loop to process it.
//
// Cancelling ctx stops the wait; if the loop has already picked the command
// up, ctx also reaches the verifier, the gateway and any pour in progress,
// and a cancelled pour ends like an emergency stop.
func (k *Kiosk) Do(ctx context.Context, cmd Command) (Reply, error) {
	if err := cmd.Validate(); err != nil {
		return Reply{}, err
	}
	req := &request{ctx: ctx, cmd: cmd, reply: make(chan response, 1)}
	if !k.queue.Enqueue(req) {
		return Reply{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case resp := <-req.reply:
		return resp.reply, resp.err
	}
}

// Run processes commands until ctx is cancelled or Stop is called.
// Commands still queued when the loop ends are answered with ErrStopped.
func (k *Kiosk) Run(ctx context.Context) error {
	slog.Info("kiosk starting", "kiosk", k.id, "backend", k.backend.Name(), "language", k.lang.String())
	defer k.rejectPending()

	for {
		if req, ok := k.queue.TryDequeue(); ok {
			k.serve(ctx, req)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("kiosk stopping: context cancelled")
			k.queue.Close()
			return ctx.Err()
		case _, open := <-k.queue.Wait():
			// A closed signal channel means Stop was called; a spurious
			// wake-up with nothing queued just loops.
			if !open && k.queue.Len() == 0 {
				slog.Info("kiosk stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the command queue; Run returns once it is empty.
func (k *Kiosk) Stop() {
	k.queue.Close()
}

func (k *Kiosk) rejectPending() {
	for _, req := range k.queue.Drain() {
		req.reply <- response{err: ErrStopped}
	}
}

// serve runs one request on the loop goroutine. The request's own context
// is merged with the loop's so that either can cancel the work.
func (k *Kiosk) serve(loopCtx context.Context, req *request) {
	ctx, cancel := context.WithCancel(req.ctx)
	stop := context.AfterFunc(loopCtx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	reply, err := k.handle(ctx, req.cmd)
	if err != nil {
		slog.Debug("command rejected", "cmd", req.cmd.String(), "error", err)
	}
	reply.Snapshot = k.session.Snapshot()
	req.reply <- response{reply: reply, err: err}
}

func (k *Kiosk) handle(ctx context.Context, cmd Command) (Reply, error) {
	var reply Reply
	switch cmd.Kind {
	case CmdSnapshot:
		return reply, nil

	case CmdAdd:
		qty := cmd.Quantity
		if qty == 0 {
			qty = 1
		}
		return reply, k.session.AddItem(ctx, cmd.BeverageID, cmd.VolumeMl, qty)

	case CmdSetQuantity:
		return reply, k.session.SetQuantity(ctx, cmd.BeverageID, cmd.VolumeMl, cmd.Quantity)

	case CmdRemove:
		return reply, k.session.RemoveItem(cmd.BeverageID, cmd.VolumeMl)

	case CmdCheckout:
		return reply, k.fire(ctx, &reply, checkout.TriggerCheckout)

	case CmdConsent:
		t := checkout.TriggerConsentDeclined
		if cmd.Accept {
			t = checkout.TriggerConsentAccepted
		}
		return reply, k.fire(ctx, &reply, t)

	case CmdVerifyAge:
		// Reject out-of-state requests before the camera is consulted.
		if err := k.precheck(checkout.TriggerAgePassed); err != nil {
			return reply, err
		}
		return reply, k.fire(ctx, &reply, checkout.CheckAge(ctx, k.age, cmd.Image, k.timeout))

	case CmdPay:
		return reply, k.pay(ctx, &reply)

	case CmdNewOrder:
		return reply, k.fire(ctx, &reply, checkout.TriggerNewOrder)

	case CmdCancel:
		return reply, k.fire(ctx, &reply, checkout.TriggerCancel)
	}
	return reply, fmt.Errorf("unknown command %q", cmd.Kind)
}

// precheck evaluates t against the current session without applying it.
func (k *Kiosk) precheck(t checkout.Trigger) error {
	snap := k.session.Snapshot()
	_, err := checkout.Evaluate(snap.State, k.session.Cart(), snap.Gate, t)
	return err
}

// fire applies t and publishes the transition.
func (k *Kiosk) fire(ctx context.Context, reply *Reply, t checkout.Trigger) error {
	tr, err := k.session.Fire(ctx, t)
	if err != nil {
		return err
	}
	reply.Transitions = append(reply.Transitions, tr)
	if tr.VerificationDenied() {
		slog.Info("restricted lines dropped", "trigger", tr.Trigger, "next", tr.To, "lines_left", len(k.session.Cart().Lines()))
	}
	k.publish(ctx, events.KindTransition, k.currentOrderID(), tr)
	return nil
}

// pay charges the customer and, once settled, dispenses the order before
// returning. A declined payment leaves the cart for another attempt.
func (k *Kiosk) pay(ctx context.Context, reply *Reply) error {
	if err := k.precheck(checkout.TriggerPaymentSettled); err != nil {
		return err
	}
	if k.scheduler.Halted() {
		return ErrHalted
	}

	t := checkout.Settle(ctx, k.payments, k.session.PaymentRequest(), k.timeout)
	if err := k.fire(ctx, reply, t); err != nil {
		return err
	}
	if t != checkout.TriggerPaymentSettled {
		return nil
	}

	order, ok := k.session.Order()
	if !ok {
		return errors.New("payment settled without a frozen order")
	}
	results, report := k.fulfill(ctx, order)
	reply.Results = results
	reply.Report = &report

	// The order ends whatever the fulfillment; staff follow up on failures.
	return k.fire(context.WithoutCancel(ctx), reply, checkout.TriggerDispenseFinished)
}

// fulfill pours a frozen order and records its lifecycle.
func (k *Kiosk) fulfill(ctx context.Context, order checkout.Order) ([]dispense.Result, dispense.Report) {
	k.setActive(order.ID)
	defer k.setActive("")

	// Records must land even when the pour was cancelled.
	recCtx := context.WithoutCancel(ctx)
	k.recordOrder(recCtx, order)
	k.publish(recCtx, events.KindOrder, order.ID, OrderEvent{Status: store.StatusProcessing, Units: order.Units(), Total: order.Total.StringFixed(2), Currency: order.Currency})

	results := k.scheduler.Dispense(ctx, order.Items())
	report := dispense.Summarize(results)

	status := store.StatusFor(report.Fulfillment)
	if k.store != nil {
		if err := k.store.UpdateOrderStatus(recCtx, order.ID, status); err != nil {
			slog.Error("failed to record order status", "order", order.ID, "status", status, "error", err)
		}
	}
	k.publish(recCtx, events.KindOrder, order.ID, OrderEvent{Status: status, Units: report.Units, Delivered: report.Delivered, PouredMl: report.PouredMl})

	log := slog.With("order", order.ID, "fulfillment", report.Fulfillment, "delivered", report.Delivered, "units", report.Units)
	if report.NeedsStaff() {
		log.Error("order failed, staff intervention needed")
	} else {
		log.Info("order finished")
	}
	return results, report
}

// OrderEvent is the payload of an order event.
type OrderEvent struct {
	Status    store.Status `json:"status"`
	Units     int          `json:"units"`
	Delivered int          `json:"delivered,omitempty"`
	PouredMl  float64      `json:"poured_ml,omitempty"`
	Total     string       `json:"total,omitempty"`
	Currency  string       `json:"currency,omitempty"`
}

// EmergencyStopEvent is the payload of an emergency_stop event.
type EmergencyStopEvent struct {
	Halted bool `json:"halted"`
}

func (k *Kiosk) recordOrder(ctx context.Context, order checkout.Order) {
	if k.store == nil {
		return
	}
	if err := k.store.WriteOrder(ctx, order); err != nil {
		slog.Error("failed to record order", "order", order.ID, "error", err)
		return
	}
	if err := k.store.UpdateOrderStatus(ctx, order.ID, store.StatusProcessing); err != nil {
		slog.Error("failed to record order status", "order", order.ID, "status", store.StatusProcessing, "error", err)
	}
}

// recordResult runs on the loop goroutine as each task finishes.
func (k *Kiosk) recordResult(r dispense.Result) {
	ctx := context.Background()
	orderID := k.currentOrderID()
	if k.store != nil && orderID != "" {
		if err := k.store.WritePourResult(ctx, orderID, r); err != nil {
			slog.Error("failed to record pour result", "order", orderID, "seq", r.Seq, "error", err)
		}
	}
	k.publish(ctx, events.KindPour, orderID, r)
}

func (k *Kiosk) publishProgress(p pour.Progress) {
	k.publish(context.Background(), events.KindProgress, k.currentOrderID(), p)
}

func (k *Kiosk) publish(ctx context.Context, kind events.Kind, orderID string, data any) {
	e := events.Event{Kind: kind, KioskID: k.id, OrderID: orderID, At: k.clk.Now(), Data: data}
	if err := k.pub.Publish(ctx, e); err != nil {
		slog.Warn("failed to publish event", "kind", kind, "order", orderID, "error", err)
	}
}

func (k *Kiosk) setActive(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = id
}

func (k *Kiosk) currentOrderID() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active != "" {
		return k.active
	}
	if o, ok := k.session.Order(); ok {
		return o.ID
	}
	return ""
}

// EmergencyStop aborts any pour in progress, closes every valve and halts
// dispensing until Resume. Units of the active order that have not been
// poured are reported as aborted timeouts. Safe from any goroutine.
func (k *Kiosk) EmergencyStop() {
	k.scheduler.EmergencyStop()
	slog.Warn("emergency stop engaged", "kiosk", k.id)
	k.publish(context.Background(), events.KindEmergencyStop, k.currentOrderID(), EmergencyStopEvent{Halted: true})
}

// Resume clears an emergency stop.
func (k *Kiosk) Resume() {
	k.scheduler.Resume()
	slog.Info("emergency stop cleared", "kiosk", k.id)
	k.publish(context.Background(), events.KindEmergencyStop, "", EmergencyStopEvent{Halted: false})
}

// Halted reports whether an emergency stop is in force.
func (k *Kiosk) Halted() bool {
	return k.scheduler.Halted()
}

// Hardware reports the backend's valve and sensor state.
func (k *Kiosk) Hardware() hw.Status {
	return k.backend.Status()
}
