package hw

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/roach88/pourkiosk/internal/clock"
)

// DefaultSimFlowRate is the flow rate of a simulated line in ml/s.
const DefaultSimFlowRate = 30.0

// SimConfig configures a simulated backend.
type SimConfig struct {
	// FlowRate is the liquid flow through an open valve in ml/s.
	FlowRate float64

	// PulsesPerMl is the calibration constant emulated by the sensors.
	PulsesPerMl float64
}

// DefaultSimConfig returns a config emulating a 30 ml/s line on a YF-S301.
func DefaultSimConfig() SimConfig {
	return SimConfig{FlowRate: DefaultSimFlowRate, PulsesPerMl: DefaultPulsesPerMl}
}

// Sim is the in-memory backend.
//
// Each Line is modelled as a valve feeding a sensor. While the valve is open
// liquid flows at the line's flow rate; the sensor emits
// floor(PulsesPerMl * ml) pulses in total, so the pulse stream is exact over
// any sequence of reads and does not drift with the polling interval.
//
// Fault injection (FailOpen, FailClose, FailRead) and supply limits
// (SetSupply) let tests exercise every pour outcome.
type Sim struct {
	mu      sync.Mutex
	clk     clock.Clock
	cfg     SimConfig
	valves  map[string]*SimValve
	sensors map[string]*SimSensor
}

// simLine holds the physical state shared by a valve and its sensor.
// All fields are guarded by Sim.mu.
type simLine struct {
	flowRate float64
	capMl    float64 // total liquid available over the line's life; negative means unlimited
	open     bool
	since    time.Time
	segNs    int64   // open time since the flow rate last changed
	baseMl   float64 // liquid delivered before the flow rate last changed
	emitted  uint64  // pulses handed out or discarded so far
}

// NewSim creates a simulated backend owning the given lines.
func NewSim(clk clock.Clock, cfg SimConfig, lines ...Line) (*Sim, error) {
	if cfg.FlowRate < 0 {
		return nil, &Error{Code: ErrCodeInitFailed, Op: "sim", Err: fmt.Errorf("negative flow rate %v", cfg.FlowRate)}
	}
	if cfg.PulsesPerMl <= 0 {
		return nil, &Error{Code: ErrCodeInitFailed, Op: "sim", Err: fmt.Errorf("pulses per ml must be positive, got %v", cfg.PulsesPerMl)}
	}

	s := &Sim{
		clk:     clk,
		cfg:     cfg,
		valves:  make(map[string]*SimValve),
		sensors: make(map[string]*SimSensor),
	}
	for _, l := range lines {
		if err := s.connect(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sim) connect(l Line) error {
	if l.ValveID == "" || l.SensorID == "" {
		return &Error{Code: ErrCodeInitFailed, Op: "connect", Err: errors.New("line needs both a valve and a sensor id")}
	}
	if _, ok := s.valves[l.ValveID]; ok {
		return &Error{Code: ErrCodeInitFailed, Op: "connect", Pin: l.ValveID, Err: errors.New("valve already connected")}
	}
	if _, ok := s.sensors[l.SensorID]; ok {
		return &Error{Code: ErrCodeInitFailed, Op: "connect", Pin: l.SensorID, Err: errors.New("sensor already connected")}
	}

	line := &simLine{flowRate: s.cfg.FlowRate, capMl: -1}
	s.valves[l.ValveID] = &SimValve{sim: s, id: l.ValveID, line: line}
	s.sensors[l.SensorID] = &SimSensor{sim: s, id: l.SensorID, line: line}
	return nil
}

// Name returns "sim".
func (s *Sim) Name() string { return "sim" }

// Valve returns the simulated valve with the given id.
func (s *Sim) Valve(id string) (Valve, error) {
	return s.SimValve(id)
}

// Sensor returns the simulated sensor with the given id.
func (s *Sim) Sensor(id string) (FlowSensor, error) {
	return s.SimSensor(id)
}

// SimValve returns the concrete simulated valve for fault injection.
func (s *Sim) SimValve(id string) (*SimValve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.valves[id]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownPin, Op: "valve", Pin: id}
	}
	return v, nil
}

// SimSensor returns the concrete simulated sensor for fault injection.
func (s *Sim) SimSensor(id string) (*SimSensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sensors[id]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownPin, Op: "sensor", Pin: id}
	}
	return v, nil
}

// CloseAll closes every simulated valve, bypassing injected faults.
func (s *Sim) CloseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	for _, v := range s.valves {
		v.line.stop(now)
	}
	return nil
}

// Status reports every valve and sensor sorted by id.
func (s *Sim) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	st := Status{Backend: s.Name()}
	for id, v := range s.valves {
		st.Valves = append(st.Valves, ValveStatus{ID: id, Open: v.line.open})
	}
	for id, sn := range s.sensors {
		sn.line.integrate(now)
		st.Sensors = append(st.Sensors, SensorStatus{ID: id, PendingPulses: sn.line.pending(s.cfg.PulsesPerMl)})
	}
	sort.Slice(st.Valves, func(i, j int) bool { return st.Valves[i].ID < st.Valves[j].ID })
	sort.Slice(st.Sensors, func(i, j int) bool { return st.Sensors[i].ID < st.Sensors[j].ID })
	return st
}

// Close closes every valve.
func (s *Sim) Close() error {
	return s.CloseAll()
}

// SetFlowRate changes the flow rate of the line fed by valveID from now on.
func (s *Sim) SetFlowRate(valveID string, mlPerSec float64) error {
	v, err := s.SimValve(valveID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v.line.integrate(s.clk.Now())
	v.line.baseMl = v.line.deliveredMl()
	v.line.segNs = 0
	v.line.flowRate = mlPerSec
	return nil
}

// SetSupply limits how much more liquid is left behind valveID. Once the
// supply runs dry the valve can stay open but the sensor stops pulsing. A
// negative value means unlimited.
func (s *Sim) SetSupply(valveID string, ml float64) error {
	v, err := s.SimValve(valveID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v.line.integrate(s.clk.Now())
	if ml < 0 {
		v.line.capMl = -1
		return nil
	}
	v.line.capMl = v.line.deliveredMl() + ml
	return nil
}

func (l *simLine) integrate(now time.Time) {
	if !l.open {
		return
	}
	if d := now.Sub(l.since); d > 0 {
		l.segNs += int64(d)
	}
	l.since = now
}

func (l *simLine) stop(now time.Time) {
	l.integrate(now)
	l.open = false
}

// deliveredMl is the liquid that has passed the sensor so far.
func (l *simLine) deliveredMl() float64 {
	ml := l.baseMl + l.flowRate*float64(l.segNs)/float64(time.Second)
	if l.capMl >= 0 && ml > l.capMl {
		ml = l.capMl
	}
	return ml
}

// produced returns the total pulses generated over the line's life.
func (l *simLine) produced(ppm float64) uint64 {
	return uint64(math.Floor(l.deliveredMl()*ppm + 1e-9))
}

func (l *simLine) pending(ppm float64) uint32 {
	p := l.produced(ppm)
	if p <= l.emitted {
		return 0
	}
	return uint32(p - l.emitted)
}

// SimValve is a valve of the simulated backend.
type SimValve struct {
	sim  *Sim
	id   string
	line *simLine

	// guarded by sim.mu
	openFaults  int
	closeFaults int
	onOpen      func()
	opens       int
	closes      int
}

// ID returns the valve pin identifier.
func (v *SimValve) ID() string { return v.id }

// Open opens the valve unless an open fault is pending.
func (v *SimValve) Open() error {
	v.sim.mu.Lock()
	if v.openFaults > 0 {
		v.openFaults--
		v.sim.mu.Unlock()
		return &Error{Code: ErrCodeIO, Op: "open", Pin: v.id, Err: ErrInjected}
	}
	hook := v.onOpen
	if !v.line.open {
		v.line.open = true
		v.line.since = v.sim.clk.Now()
	}
	v.opens++
	v.sim.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Close closes the valve unless a close fault is pending. A failed close
// leaves the valve open, as a stuck relay would.
func (v *SimValve) Close() error {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	if v.closeFaults > 0 {
		v.closeFaults--
		return &Error{Code: ErrCodeIO, Op: "close", Pin: v.id, Err: ErrInjected}
	}
	v.line.stop(v.sim.clk.Now())
	v.closes++
	return nil
}

// IsOpen reports whether the valve is open.
func (v *SimValve) IsOpen() bool {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	return v.line.open
}

// FailOpen makes the next n Open calls fail.
func (v *SimValve) FailOpen(n int) {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	v.openFaults = n
}

// FailClose makes the next n Close calls fail.
func (v *SimValve) FailClose(n int) {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	v.closeFaults = n
}

// OnOpen installs a hook called after every successful Open, outside the
// backend lock. Tests use it to hold a pour in flight.
func (v *SimValve) OnOpen(fn func()) {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	v.onOpen = fn
}

// Counts returns how many successful opens and closes the valve has seen.
func (v *SimValve) Counts() (opens, closes int) {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	return v.opens, v.closes
}

// SimSensor is a flow sensor of the simulated backend.
type SimSensor struct {
	sim  *Sim
	id   string
	line *simLine

	readFaults int // guarded by sim.mu
}

// ID returns the sensor pin identifier.
func (s *SimSensor) ID() string { return s.id }

// ResetCounter discards every pending pulse.
func (s *SimSensor) ResetCounter() error {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	s.line.integrate(s.sim.clk.Now())
	s.line.emitted = s.line.produced(s.sim.cfg.PulsesPerMl)
	return nil
}

// ReadAndResetPulses returns the pulses produced since the last read.
func (s *SimSensor) ReadAndResetPulses() (uint32, error) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	if s.readFaults > 0 {
		s.readFaults--
		return 0, &Error{Code: ErrCodeIO, Op: "read", Pin: s.id, Err: ErrInjected}
	}
	s.line.integrate(s.sim.clk.Now())
	n := s.line.pending(s.sim.cfg.PulsesPerMl)
	s.line.emitted += uint64(n)
	return n, nil
}

// FailRead makes the next n reads fail.
func (s *SimSensor) FailRead(n int) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	s.readFaults = n
}
