package dispense

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/hw"
	"github.com/roach88/pourkiosk/internal/pour"
)

// Lookup resolves beverage IDs. catalog.Catalog satisfies it.
type Lookup interface {
	Beverage(ctx context.Context, id string) (catalog.Beverage, error)
}

// Scheduler runs orders through a pour.Controller one task at a time.
//
// Thread-safety: Dispense is meant to be called from a single goroutine (the
// kiosk loop). EmergencyStop, Resume and Halted are safe from any goroutine.
type Scheduler struct {
	ctrl      *pour.Controller
	backend   hw.Backend
	beverages Lookup

	faultRetries int
	onResult     func(Result)

	halted atomic.Bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithFaultRetries re-issues a pour that ended in a hardware fault up to n
// more times. Zero (the default) never retries.
func WithFaultRetries(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.faultRetries = n
		}
	}
}

// WithResultHook installs a callback invoked with every task result as soon
// as it is known, before the next task starts.
func WithResultHook(fn func(Result)) SchedulerOption {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(ctrl *pour.Controller, backend hw.Backend, beverages Lookup, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{ctrl: ctrl, backend: backend, beverages: beverages}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// plan is a task resolved against the catalog and the backend. A nil valve
// means the task cannot be poured and reason says why.
type plan struct {
	seq      int
	beverage string
	unit     int
	task     pour.Task
	valve    hw.Valve
	sensor   hw.FlowSensor
	reason   error
}

// Dispense pours every unit of items in order and returns exactly one Result
// per unit. It never stops early on a failed unit; only cancellation of ctx
// or an emergency stop ends the order, and every unit not yet poured is then
// reported as an aborted timeout without touching the hardware.
func (s *Scheduler) Dispense(ctx context.Context, items []OrderItem) []Result {
	plans := s.expand(ctx, items)
	results := make([]Result, 0, len(plans))

	for _, p := range plans {
		var r Result
		switch {
		case s.halted.Load() || ctx.Err() != nil:
			r = s.skipped(p)
		case p.valve == nil:
			r = s.unconfigured(p)
		default:
			r = s.run(ctx, p)
		}
		results = append(results, r)
		if s.onResult != nil {
			s.onResult(r)
		}
	}

	rep := Summarize(results)
	slog.Info("order dispensed",
		"units", rep.Units,
		"delivered", rep.Delivered,
		"fulfillment", rep.Fulfillment,
		"poured_ml", rep.PouredMl)
	return results
}

// expand resolves items into one plan per unit, in item order then unit
// order.
func (s *Scheduler) expand(ctx context.Context, items []OrderItem) []plan {
	plans := make([]plan, 0, Units(items))
	seq := 0
	for _, it := range items {
		valve, sensor, reason := s.resolve(ctx, it)
		task := pour.Task{TargetMl: float64(it.VolumeMl)}
		if valve != nil {
			task.ValveID, task.SensorID = valve.ID(), sensor.ID()
		}
		for unit := 1; unit <= it.Quantity; unit++ {
			seq++
			plans = append(plans, plan{
				seq:      seq,
				beverage: it.BeverageID,
				unit:     unit,
				task:     task,
				valve:    valve,
				sensor:   sensor,
				reason:   reason,
			})
		}
	}
	return plans
}

func (s *Scheduler) resolve(ctx context.Context, it OrderItem) (hw.Valve, hw.FlowSensor, error) {
	if it.VolumeMl <= 0 {
		return nil, nil, fmt.Errorf("invalid volume %d ml", it.VolumeMl)
	}
	b, err := s.beverages.Beverage(ctx, it.BeverageID)
	if err != nil {
		return nil, nil, err
	}
	if !b.Configured() {
		return nil, nil, fmt.Errorf("beverage %s has no valve or sensor mapping", b.ID)
	}
	valve, err := s.backend.Valve(b.ValveID)
	if err != nil {
		return nil, nil, err
	}
	sensor, err := s.backend.Sensor(b.SensorID)
	if err != nil {
		return nil, nil, err
	}
	return valve, sensor, nil
}

func (s *Scheduler) run(ctx context.Context, p plan) Result {
	r := Result{Seq: p.seq, BeverageID: p.beverage, Unit: p.unit}
	for attempt := 0; attempt <= s.faultRetries; attempt++ {
		r.Attempts++
		res, err := s.ctrl.Pour(ctx, p.valve, p.sensor, p.task.TargetMl)
		if pour.IsStopped(err) {
			// The stop landed after the halted check; the valve was never opened.
			return s.skipped(p)
		}
		if err != nil {
			r.Result = s.rejected(p, err)
			return r
		}
		r.Result = res
		if res.Outcome != pour.OutcomeHardwareFault || res.Aborted || s.halted.Load() {
			return r
		}
		if attempt < s.faultRetries {
			slog.Warn("retrying pour after hardware fault",
				"seq", p.seq, "beverage", p.beverage, "attempt", r.Attempts, "error", res.Err)
		}
	}
	return r
}

// rejected maps a pour that never started onto a Result.
func (s *Scheduler) rejected(p plan, err error) pour.Result {
	res := pour.Result{
		ValveID:  p.task.ValveID,
		SensorID: p.task.SensorID,
		TargetMl: p.task.TargetMl,
		Outcome:  pour.OutcomeHardwareFault,
		Err:      err,
	}
	if pour.IsAlreadyInUse(err) {
		res.Outcome = pour.OutcomeAlreadyInUse
	}
	slog.Warn("pour rejected", "seq", p.seq, "beverage", p.beverage, "outcome", res.Outcome, "error", err)
	return res
}

func (s *Scheduler) unconfigured(p plan) Result {
	slog.Warn("skipping unconfigured beverage", "seq", p.seq, "beverage", p.beverage, "reason", p.reason)
	return Result{
		Seq:        p.seq,
		BeverageID: p.beverage,
		Unit:       p.unit,
		Result: pour.Result{
			TargetMl: p.task.TargetMl,
			Outcome:  pour.OutcomeUnconfigured,
			Err:      p.reason,
		},
	}
}

func (s *Scheduler) skipped(p plan) Result {
	return Result{
		Seq:        p.seq,
		BeverageID: p.beverage,
		Unit:       p.unit,
		Result: pour.Result{
			ValveID:  p.task.ValveID,
			SensorID: p.task.SensorID,
			TargetMl: p.task.TargetMl,
			Outcome:  pour.OutcomeTimedOut,
			Aborted:  true,
		},
	}
}

// EmergencyStop aborts the pour in flight and every remaining unit of the
// current order, then closes every valve on the backend. The scheduler stays
// halted, reporting every later unit as aborted, until Resume is called.
func (s *Scheduler) EmergencyStop() {
	s.halted.Store(true)
	s.ctrl.EmergencyStop()
	if err := s.backend.CloseAll(); err != nil {
		slog.Error("emergency stop: close all valves failed", "error", err)
	}
}

// Resume clears a previous EmergencyStop.
func (s *Scheduler) Resume() {
	s.ctrl.Resume()
	if s.halted.Swap(false) {
		slog.Info("dispensing resumed")
	}
}

// Halted reports whether an emergency stop is in effect.
func (s *Scheduler) Halted() bool {
	return s.halted.Load()
}
