package harness

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/config"
	"github.com/roach88/pourkiosk/internal/dispense"
	"github.com/roach88/pourkiosk/internal/events"
	"github.com/roach88/pourkiosk/internal/hw"
	"github.com/roach88/pourkiosk/internal/kiosk"
	"github.com/roach88/pourkiosk/internal/store"
)

// traced lists the event kinds that appear in a trace. Progress is left out;
// it is one line per poll.
var traced = []events.Kind{
	events.KindTransition,
	events.KindOrder,
	events.KindPour,
	events.KindEmergencyStop,
}

// Harness holds one scenario's kiosk and the pieces assertions inspect.
type Harness struct {
	kiosk   *kiosk.Kiosk
	sim     *hw.Sim
	catalog *catalog.Memory
	store   *store.Store
	rec     *events.Recorder
	seen    int // traced events already copied into the trace
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database on a manual clock, so
// results are reproducible.
//
// Execution flow:
// 1. Build the catalog, simulated backend, store and kiosk
// 2. Apply the line setup (faults, flow, supply, emergency stop hooks)
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	clk := clock.NewManual()

	cat, err := loadCatalog(scenario.Catalog)
	if err != nil {
		return nil, err
	}

	cfg := configFor(scenario.Setup)
	sim, err := hw.NewSim(clk, cfg.SimConfig(), cat.Lines()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulated backend: %w", err)
	}
	defer sim.Close()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	rec := &events.Recorder{}
	k, err := kiosk.New(cfg, cat, sim, clk,
		kiosk.WithStore(st),
		kiosk.WithPublisher(rec),
		kiosk.WithIDGenerator(checkout.NewSequenceGenerator("order")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kiosk: %w", err)
	}

	h := &Harness{kiosk: k, sim: sim, catalog: cat, store: st, rec: rec}
	if err := h.applyLines(cat, scenario.Setup.Lines); err != nil {
		return nil, fmt.Errorf("failed to apply setup: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = k.Run(runCtx)
	}()
	defer func() {
		k.Stop()
		cancel()
		wg.Wait()
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		h.execute(ctx, i+1, step, result)
	}

	for _, msg := range h.evaluateAssertions(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadCatalog(path string) (*catalog.Memory, error) {
	if path == "" {
		return catalog.NewMemory(catalog.Seed()...)
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat, nil
}

func configFor(s Setup) config.Config {
	cfg := config.Default()
	cfg.Store.Path = ":memory:"
	if s.EnableAlcohol != nil {
		cfg.Kiosk.EnableAlcohol = *s.EnableAlcohol
	}
	if s.MaxItems > 0 {
		cfg.Kiosk.MaxItems = s.MaxItems
	}
	cfg.Dispense.FaultRetries = s.FaultRetries
	cfg.Pour.StopOnStall = s.StopOnStall
	if s.ApproveAge != nil {
		cfg.Verification.SimApproveAge = *s.ApproveAge
	}
	if s.ApprovePayment != nil {
		cfg.Verification.SimApprovePayment = *s.ApprovePayment
	}
	return cfg
}

func (h *Harness) applyLines(cat *catalog.Memory, lines []LineSetup) error {
	sensorOf := make(map[string]string)
	for _, l := range cat.Lines() {
		sensorOf[l.ValveID] = l.SensorID
	}

	for _, l := range lines {
		v, err := h.sim.SimValve(l.Valve)
		if err != nil {
			return err
		}
		if l.FlowRate != nil {
			if err := h.sim.SetFlowRate(l.Valve, *l.FlowRate); err != nil {
				return err
			}
		}
		if l.SupplyMl != nil {
			if err := h.sim.SetSupply(l.Valve, *l.SupplyMl); err != nil {
				return err
			}
		}
		if l.FailOpen > 0 {
			v.FailOpen(l.FailOpen)
		}
		if l.FailClose > 0 {
			v.FailClose(l.FailClose)
		}
		if l.FailRead > 0 {
			s, err := h.sim.SimSensor(sensorOf[l.Valve])
			if err != nil {
				return err
			}
			s.FailRead(l.FailRead)
		}
		if l.EstopOnOpen {
			var once sync.Once
			v.OnOpen(func() { once.Do(h.kiosk.EmergencyStop) })
		}
	}
	return nil
}

// execute runs one step, appends its trace and checks its expect clause.
func (h *Harness) execute(ctx context.Context, n int, step Step, result *Result) {
	result.AddTrace(n, KindCmd, step.Command.String())

	var (
		reply kiosk.Reply
		err   error
	)
	switch step.Kind {
	case kiosk.CmdEmergencyStop:
		h.kiosk.EmergencyStop()
		reply, err = h.kiosk.Do(ctx, snapshotCommand)
	case kiosk.CmdResume:
		h.kiosk.Resume()
		reply, err = h.kiosk.Do(ctx, snapshotCommand)
	case kiosk.CmdStatus:
		result.AddTrace(n, KindState, describeHardware(h.kiosk.Hardware()))
		reply, err = h.kiosk.Do(ctx, snapshotCommand)
	default:
		reply, err = h.kiosk.Do(ctx, step.Command)
	}

	h.traceEvents(n, result)
	if err != nil {
		result.AddTrace(n, KindError, describeError(err))
	}
	result.AddTrace(n, KindState, describeState(reply.Snapshot))

	h.checkExpect(n, step, reply, err, result)
}

func (h *Harness) checkExpect(n int, step Step, reply kiosk.Reply, err error, result *Result) {
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if err != nil {
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", n, step.Command, err))
		}
	} else if !errorMatches(err, exp.Error) {
		result.AddError(fmt.Sprintf("step %d (%s): expected error %q, got %v", n, step.Command, exp.Error, err))
	}
	if exp != nil && exp.State != "" && reply.State != exp.State {
		result.AddError(fmt.Sprintf("step %d (%s): expected state %s, got %s", n, step.Command, exp.State, reply.State))
	}
}

// traceEvents copies the events published since the last step.
func (h *Harness) traceEvents(n int, result *Result) {
	evs := h.rec.Events(traced...)
	for _, e := range evs[h.seen:] {
		result.AddTrace(n, traceKind(e.Kind), describeEvent(e))
	}
	h.seen = len(evs)
}

func traceKind(k events.Kind) string {
	switch k {
	case events.KindTransition:
		return KindTransition
	case events.KindOrder:
		return KindOrder
	case events.KindPour:
		return KindPour
	case events.KindEmergencyStop:
		return KindEstop
	}
	return string(k)
}

func describeEvent(e events.Event) string {
	switch d := e.Data.(type) {
	case checkout.Transition:
		return fmt.Sprintf("%s --%s--> %s [%s]", d.From, d.Trigger, d.To, d.Effect)
	case kiosk.OrderEvent:
		if d.Status == store.StatusProcessing {
			return fmt.Sprintf("%s processing units=%d total=%s %s", e.OrderID, d.Units, d.Total, d.Currency)
		}
		return fmt.Sprintf("%s %s delivered=%d/%d poured=%.1fml", e.OrderID, d.Status, d.Delivered, d.Units, d.PouredMl)
	case dispense.Result:
		if d.Aborted {
			return d.String() + " aborted"
		}
		return d.String()
	case kiosk.EmergencyStopEvent:
		if d.Halted {
			return "halted"
		}
		return "resumed"
	}
	return fmt.Sprintf("%v", e.Data)
}

func describeState(s checkout.Snapshot) string {
	units := 0
	for _, l := range s.Lines {
		units += l.Quantity
	}
	return fmt.Sprintf("%s lines=%d units=%d total=%s", s.State, len(s.Lines), units, s.Total.StringFixed(2))
}

func describeHardware(st hw.Status) string {
	open := 0
	for _, v := range st.Valves {
		if v.Open {
			open++
		}
	}
	return fmt.Sprintf("hardware %s valves=%d open=%d", st.Backend, len(st.Valves), open)
}

func describeError(err error) string {
	if code := checkout.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}

func errorMatches(err error, want string) bool {
	if err == nil {
		return false
	}
	if string(checkout.CodeOf(err)) == want {
		return true
	}
	return strings.Contains(err.Error(), want)
}

var snapshotCommand = kiosk.Command{Kind: kiosk.CmdSnapshot}
