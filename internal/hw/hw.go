package hw

// DefaultPulsesPerMl is the calibration constant of the YF-S301 flow sensor.
const DefaultPulsesPerMl = 7.5

// Valve is an electromechanical valve on a digital output line.
type Valve interface {
	// ID returns the stable pin identifier of the valve.
	ID() string

	// Open energises the valve. Opening an open valve is a no-op.
	Open() error

	// Close de-energises the valve. Closing a closed valve is a no-op.
	Close() error

	// IsOpen reports the last state successfully written to the valve.
	IsOpen() bool
}

// FlowSensor is a pulse-counting flow meter.
type FlowSensor interface {
	// ID returns the stable pin identifier of the sensor.
	ID() string

	// ResetCounter discards every pulse counted so far.
	ResetCounter() error

	// ReadAndResetPulses returns the pulses counted since the previous
	// read or reset and clears the counter.
	ReadAndResetPulses() (uint32, error)
}

// Line pairs a valve with the flow sensor downstream of it.
type Line struct {
	ValveID  string `yaml:"valve_id" json:"valve_id"`
	SensorID string `yaml:"sensor_id" json:"sensor_id"`
}

// ValveStatus is a point-in-time view of one valve.
type ValveStatus struct {
	ID   string `json:"id"`
	Open bool   `json:"open"`
}

// SensorStatus is a point-in-time view of one flow sensor.
type SensorStatus struct {
	ID            string `json:"id"`
	PendingPulses uint32 `json:"pending_pulses"`
}

// Status summarises every handle owned by a backend.
type Status struct {
	Backend string         `json:"backend"`
	Valves  []ValveStatus  `json:"valves"`
	Sensors []SensorStatus `json:"sensors"`
}

// Backend owns the valve and sensor handles of one kiosk.
type Backend interface {
	// Name identifies the variant ("sim" or "gpio").
	Name() string

	// Valve returns the handle for the valve with the given pin identifier.
	Valve(id string) (Valve, error)

	// Sensor returns the handle for the sensor with the given pin identifier.
	Sensor(id string) (FlowSensor, error)

	// CloseAll closes every valve. Every valve is attempted even when some
	// fail; the returned error joins all failures.
	CloseAll() error

	// Status reports valve states and pending pulse counts, sorted by ID.
	Status() Status

	// Close closes every valve and releases the backend.
	Close() error
}
