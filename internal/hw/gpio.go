package hw

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgePollTimeout bounds each WaitForEdge call so counter goroutines notice
// shutdown promptly.
const edgePollTimeout = 100 * time.Millisecond

// GPIO is the physical backend.
//
// Valves are push-pull outputs driven low (closed) at start-up. Flow sensors
// are pulled-up inputs with rising-edge detection; one goroutine per sensor
// blocks on WaitForEdge and increments an atomic counter, so reads never
// contend with the interrupt path.
type GPIO struct {
	mu      sync.Mutex
	valves  map[string]*gpioValve
	sensors map[string]*gpioSensor
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewGPIO initialises the host drivers and claims every line.
//
// Any failure (driver missing, insufficient permissions, unknown pin) is
// returned as an ErrCodeInitFailed error and every pin already claimed is
// released; nothing is deferred to the first Open or Read.
func NewGPIO(lines ...Line) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, &Error{Code: ErrCodeInitFailed, Op: "host init", Err: err}
	}

	g := &GPIO{
		valves:  make(map[string]*gpioValve),
		sensors: make(map[string]*gpioSensor),
		stop:    make(chan struct{}),
	}

	for _, l := range lines {
		if err := g.claim(l); err != nil {
			_ = g.Close()
			return nil, err
		}
	}

	slog.Info("gpio backend ready", "valves", len(g.valves), "sensors", len(g.sensors))
	return g, nil
}

func (g *GPIO) claim(l Line) error {
	if _, ok := g.valves[l.ValveID]; ok {
		return &Error{Code: ErrCodeInitFailed, Op: "claim valve", Pin: l.ValveID, Err: errors.New("pin already claimed")}
	}
	if _, ok := g.sensors[l.SensorID]; ok {
		return &Error{Code: ErrCodeInitFailed, Op: "claim sensor", Pin: l.SensorID, Err: errors.New("pin already claimed")}
	}

	vp := gpioreg.ByName(l.ValveID)
	if vp == nil {
		return &Error{Code: ErrCodeInitFailed, Op: "claim valve", Pin: l.ValveID, Err: errors.New("no such pin")}
	}
	// Valves always start closed.
	if err := vp.Out(gpio.Low); err != nil {
		return &Error{Code: ErrCodeInitFailed, Op: "claim valve", Pin: l.ValveID, Err: err}
	}
	g.valves[l.ValveID] = &gpioValve{id: l.ValveID, pin: vp}

	sp := gpioreg.ByName(l.SensorID)
	if sp == nil {
		return &Error{Code: ErrCodeInitFailed, Op: "claim sensor", Pin: l.SensorID, Err: errors.New("no such pin")}
	}
	if err := sp.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return &Error{Code: ErrCodeInitFailed, Op: "claim sensor", Pin: l.SensorID, Err: err}
	}
	s := &gpioSensor{id: l.SensorID, pin: sp}
	g.sensors[l.SensorID] = s

	g.wg.Add(1)
	go g.countEdges(s)
	return nil
}

// countEdges accumulates rising edges until the backend is closed.
func (g *GPIO) countEdges(s *gpioSensor) {
	defer g.wg.Done()
	for {
		select {
		case <-g.stop:
			return
		default:
		}
		if s.pin.WaitForEdge(edgePollTimeout) {
			s.count.Add(1)
		}
	}
}

// Name returns "gpio".
func (g *GPIO) Name() string { return "gpio" }

// Valve returns the valve claimed on the given pin.
func (g *GPIO) Valve(id string) (Valve, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.valves[id]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownPin, Op: "valve", Pin: id}
	}
	return v, nil
}

// Sensor returns the sensor claimed on the given pin.
func (g *GPIO) Sensor(id string) (FlowSensor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sensors[id]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownPin, Op: "sensor", Pin: id}
	}
	return s, nil
}

// CloseAll drives every valve low.
func (g *GPIO) CloseAll() error {
	g.mu.Lock()
	valves := make([]*gpioValve, 0, len(g.valves))
	for _, v := range g.valves {
		valves = append(valves, v)
	}
	g.mu.Unlock()

	var errs []error
	for _, v := range valves {
		if err := v.Close(); err != nil {
			slog.Error("failed to close valve", "valve", v.id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status reports every valve and sensor sorted by pin.
func (g *GPIO) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Status{Backend: g.Name()}
	for id, v := range g.valves {
		st.Valves = append(st.Valves, ValveStatus{ID: id, Open: v.IsOpen()})
	}
	for id, s := range g.sensors {
		st.Sensors = append(st.Sensors, SensorStatus{ID: id, PendingPulses: s.count.Load()})
	}
	sort.Slice(st.Valves, func(i, j int) bool { return st.Valves[i].ID < st.Valves[j].ID })
	sort.Slice(st.Sensors, func(i, j int) bool { return st.Sensors[i].ID < st.Sensors[j].ID })
	return st
}

// Close closes every valve, stops the edge counters and halts all pins.
// Safe to call more than once.
func (g *GPIO) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.stop)
	g.mu.Unlock()

	err := g.CloseAll()
	g.wg.Wait()

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, s := range g.sensors {
		if herr := s.pin.Halt(); herr != nil {
			errs = append(errs, fmt.Errorf("halt sensor %s: %w", s.id, herr))
		}
	}
	return errors.Join(errs...)
}

type gpioValve struct {
	id  string
	pin gpio.PinIO

	mu   sync.Mutex
	open bool
}

func (v *gpioValve) ID() string { return v.id }

func (v *gpioValve) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.pin.Out(gpio.High); err != nil {
		return &Error{Code: ErrCodeIO, Op: "open", Pin: v.id, Err: err}
	}
	v.open = true
	return nil
}

func (v *gpioValve) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.pin.Out(gpio.Low); err != nil {
		return &Error{Code: ErrCodeIO, Op: "close", Pin: v.id, Err: err}
	}
	v.open = false
	return nil
}

func (v *gpioValve) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

type gpioSensor struct {
	id    string
	pin   gpio.PinIO
	count atomic.Uint32
}

func (s *gpioSensor) ID() string { return s.id }

func (s *gpioSensor) ResetCounter() error {
	s.count.Store(0)
	return nil
}

func (s *gpioSensor) ReadAndResetPulses() (uint32, error) {
	return s.count.Swap(0), nil
}
