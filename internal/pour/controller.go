package pour

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/hw"
)

// Controller runs pours and enforces at most one in-flight pour per valve.
//
// Thread-safety: Pour may be called from several goroutines. Pours on
// distinct valves proceed independently (there is no global lock around the
// loop); a second pour on a busy valve fails fast with ALREADY_IN_USE.
type Controller struct {
	cfg      Config
	clk      clock.Clock
	progress func(Progress)

	mu       sync.Mutex
	inflight map[string]*inflight // keyed by valve ID
	stopped  bool                 // set by EmergencyStop, cleared by Resume
}

// inflight tracks one running pour so EmergencyStop can reach it.
type inflight struct {
	valve hw.Valve
	abort chan struct{}
	once  sync.Once
}

func (f *inflight) stop() {
	f.once.Do(func() { close(f.abort) })
}

// Option configures a Controller.
type Option func(*Controller)

// WithProgress installs a callback invoked after every poll with the volume
// poured so far. The callback runs on the pouring goroutine and must not
// block.
func WithProgress(fn func(Progress)) Option {
	return func(c *Controller) {
		c.progress = fn
	}
}

// New creates a Controller. cfg must pass Validate.
func New(clk clock.Clock, cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:      cfg,
		clk:      clk,
		inflight: make(map[string]*inflight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Pour dispenses targetMl through valve, metered by sensor.
//
// The returned error is non-nil only when the pour never started: the valve
// is busy (ALREADY_IN_USE) or the target is invalid. Every other ending,
// including backend failures, is reported through Result.Outcome, and in
// every case the valve has been closed before Pour returns.
//
// Cancelling ctx aborts the pour like an emergency stop.
func (c *Controller) Pour(ctx context.Context, valve hw.Valve, sensor hw.FlowSensor, targetMl float64) (Result, error) {
	if targetMl <= 0 || math.IsNaN(targetMl) || math.IsInf(targetMl, 0) {
		return Result{}, newInvalidTarget(valve.ID(), targetMl)
	}

	fl, err := c.acquire(valve)
	if err != nil {
		return Result{}, err
	}
	defer c.release(valve.ID())

	// A panicking backend must not leave liquid running.
	defer func() {
		if r := recover(); r != nil {
			_ = valve.Close()
			panic(r)
		}
	}()

	res := Result{
		ValveID:  valve.ID(),
		SensorID: sensor.ID(),
		TargetMl: targetMl,
	}
	log := slog.With("valve", valve.ID(), "sensor", sensor.ID(), "target_ml", targetMl)
	log.Info("pour starting")

	start := c.clk.Now()
	var (
		total    uint64
		fault    error
		timedOut bool
		aborted  bool
	)

	if err := sensor.ResetCounter(); err != nil {
		fault = err
	} else if err := valve.Open(); err != nil {
		fault = err
	} else {
		total, timedOut, aborted, fault = c.loop(ctx, fl, sensor, targetMl, start, log)
	}

	if err := c.closeValve(valve, log); err != nil {
		fault = errors.Join(fault, err)
	}

	// Drain pulses still in flight after the valve shut. Skipped when the
	// caller is going away; the valve is already closed.
	if ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-c.clk.After(c.cfg.Settle):
		}
	}
	n, err := sensor.ReadAndResetPulses()
	if err != nil {
		fault = errors.Join(fault, err)
	}
	total += uint64(n)

	res.Pulses = total
	res.PouredMl = float64(total) / c.cfg.PulsesPerMl
	res.Elapsed = c.clk.Now().Sub(start)
	res.Aborted = aborted
	res.Err = fault
	res.Outcome = c.classify(res.PouredMl, targetMl, fault != nil, timedOut, aborted)

	switch res.Outcome {
	case OutcomeCompleted:
		log.Info("pour completed", "poured_ml", res.PouredMl, "elapsed", res.Elapsed)
	case OutcomeHardwareFault:
		log.Error("pour failed", "poured_ml", res.PouredMl, "error", fault)
	default:
		log.Warn("incomplete pour", "outcome", res.Outcome, "poured_ml", res.PouredMl, "aborted", aborted)
	}

	return res, nil
}

// loop is the sampling state machine: wait one interval, read, accumulate,
// decide. It returns with the valve still open; the caller closes it.
func (c *Controller) loop(
	ctx context.Context,
	fl *inflight,
	sensor hw.FlowSensor,
	targetMl float64,
	start time.Time,
	log *slog.Logger,
) (total uint64, timedOut, aborted bool, fault error) {
	lastFlow := start
	warned := false
	stallMsg := "no flow detected, check beverage supply and sensor connection"

	for {
		if isAborted(ctx, fl) {
			return total, false, true, nil
		}
		select {
		case <-fl.abort:
		case <-ctx.Done():
		case <-c.clk.After(c.cfg.PollInterval):
		}
		if isAborted(ctx, fl) {
			return total, false, true, nil
		}

		n, err := sensor.ReadAndResetPulses()
		if err != nil {
			return total, false, false, err
		}
		now := c.clk.Now()
		if n > 0 {
			total += uint64(n)
			lastFlow = now
		}

		poured := float64(total) / c.cfg.PulsesPerMl
		elapsed := now.Sub(start)
		log.Debug("pouring", "poured_ml", poured, "pulses", total, "elapsed", elapsed)
		if c.progress != nil {
			c.progress(Progress{ValveID: fl.valve.ID(), TargetMl: targetMl, PouredMl: poured, Elapsed: elapsed})
		}

		if poured >= targetMl {
			return total, false, false, nil
		}
		if elapsed >= c.cfg.Ceiling {
			return total, true, false, nil
		}
		if c.cfg.StallWindow > 0 && now.Sub(lastFlow) >= c.cfg.StallWindow {
			if total > 0 && c.cfg.StopOnStall {
				log.Warn("flow stopped before target, ending pour", "poured_ml", poured)
				return total, false, false, nil
			}
			if !warned {
				if total > 0 {
					stallMsg = "flow stopped before target"
				}
				log.Warn(stallMsg, "poured_ml", poured, "elapsed", elapsed)
				warned = true
			}
		}
	}
}

func isAborted(ctx context.Context, fl *inflight) bool {
	select {
	case <-fl.abort:
		return true
	default:
	}
	return ctx.Err() != nil
}

// classify maps the loop's exit facts onto an Outcome.
func (c *Controller) classify(poured, target float64, fault, timedOut, aborted bool) Outcome {
	switch {
	case fault:
		return OutcomeHardwareFault
	case aborted:
		return OutcomeTimedOut
	case poured >= c.cfg.CompletionRatio*target:
		return OutcomeCompleted
	case timedOut:
		return OutcomeTimedOut
	case poured > 0:
		return OutcomeUnderfilled
	default:
		return OutcomeTimedOut
	}
}

// closeValve closes the valve, issuing one fail-safe second close when the
// first fails. The first failure is still returned so the pour is reported
// as a hardware fault.
func (c *Controller) closeValve(valve hw.Valve, log *slog.Logger) error {
	err := valve.Close()
	if err == nil {
		return nil
	}
	log.Error("valve close failed, retrying fail-safe close", "error", err)
	if err2 := valve.Close(); err2 != nil {
		log.Error("VALVE MAY BE OPEN: fail-safe close failed", "error", err2)
		return errors.Join(err, err2)
	}
	return err
}

func (c *Controller) acquire(valve hw.Valve) (*inflight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, newStopped(valve.ID())
	}
	if _, busy := c.inflight[valve.ID()]; busy {
		return nil, newAlreadyInUse(valve.ID())
	}
	fl := &inflight{valve: valve, abort: make(chan struct{})}
	c.inflight[valve.ID()] = fl
	return fl, nil
}

func (c *Controller) release(valveID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, valveID)
}

// InFlight returns the IDs of valves currently pouring, sorted.
func (c *Controller) InFlight() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.inflight))
	for id := range c.inflight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EmergencyStop aborts every in-flight pour and closes its valve without
// waiting for the pour loop. The aborted pours return OutcomeTimedOut with
// Aborted set. Until Resume, every new Pour fails with STOPPED before the
// valve is touched. Returns the number of pours aborted.
//
// Valves that are not pouring are not touched here; pair with
// hw.Backend.CloseAll to force the whole machine shut.
func (c *Controller) EmergencyStop() int {
	c.mu.Lock()
	c.stopped = true
	pours := make([]*inflight, 0, len(c.inflight))
	for _, fl := range c.inflight {
		pours = append(pours, fl)
	}
	c.mu.Unlock()

	for _, fl := range pours {
		fl.stop()
		if err := fl.valve.Close(); err != nil {
			slog.Error("emergency stop: valve close failed", "valve", fl.valve.ID(), "error", err)
		}
	}
	if len(pours) > 0 {
		slog.Warn("emergency stop", "aborted_pours", len(pours))
	}
	return len(pours)
}

// Resume lets pours start again after EmergencyStop.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = false
}
