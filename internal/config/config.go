package config

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/events"
	"github.com/roach88/pourkiosk/internal/hw"
	"github.com/roach88/pourkiosk/internal/pour"
)

// Hardware backends.
const (
	BackendSim  = "sim"
	BackendGPIO = "gpio"
)

// Config is the full kiosk configuration.
type Config struct {
	Kiosk        Kiosk        `yaml:"kiosk" json:"kiosk"`
	Hardware     Hardware     `yaml:"hardware" json:"hardware"`
	Pour         Pour         `yaml:"pour" json:"pour"`
	Dispense     Dispense     `yaml:"dispense" json:"dispense"`
	Verification Verification `yaml:"verification" json:"verification"`
	Store        Store        `yaml:"store" json:"store"`
	MQTT         MQTT         `yaml:"mqtt" json:"mqtt"`
	Catalog      Catalog      `yaml:"catalog" json:"catalog"`
}

// Kiosk holds storefront settings.
type Kiosk struct {
	ID            string `yaml:"id" json:"id"`
	Language      string `yaml:"language" json:"language"`
	Currency      string `yaml:"currency" json:"currency"`
	EnableAlcohol bool   `yaml:"enable_alcohol" json:"enable_alcohol"`
	MaxItems      int    `yaml:"max_items" json:"max_items"`
}

// Hardware selects and calibrates the backend.
type Hardware struct {
	Backend     string  `yaml:"backend" json:"backend"`
	PulsesPerMl float64 `yaml:"pulses_per_ml" json:"pulses_per_ml"`
	// SimFlowRate is the flow of a simulated line in ml/s.
	SimFlowRate float64 `yaml:"sim_flow_rate_ml_s" json:"sim_flow_rate_ml_s"`
}

// Pour tunes the pour controller.
type Pour struct {
	PollInterval    Duration `yaml:"poll_interval" json:"poll_interval"`
	Ceiling         Duration `yaml:"ceiling" json:"ceiling"`
	Settle          Duration `yaml:"settle" json:"settle"`
	StallWindow     Duration `yaml:"stall_window" json:"stall_window"`
	// StopOnStall ends a pour whose flow stopped for stall_window.
	StopOnStall     bool    `yaml:"stop_on_stall" json:"stop_on_stall"`
	CompletionRatio float64 `yaml:"completion_ratio" json:"completion_ratio"`
}

// Dispense tunes the scheduler.
type Dispense struct {
	FaultRetries int `yaml:"fault_retries" json:"fault_retries"`
}

// Verification configures the age and payment ports.
type Verification struct {
	Timeout Duration `yaml:"timeout" json:"timeout"`
	// SimApproveAge and SimApprovePayment drive the simulated ports.
	SimApproveAge     bool `yaml:"sim_approve_age" json:"sim_approve_age"`
	SimApprovePayment bool `yaml:"sim_approve_payment" json:"sim_approve_payment"`
}

// Store locates the order log.
type Store struct {
	Path string `yaml:"path" json:"path"`
}

// MQTT configures telemetry. An empty broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker" json:"broker"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
	QoS         int    `yaml:"qos" json:"qos"`
}

// Catalog locates the beverage list. An empty path uses the seed beverages.
type Catalog struct {
	Path string `yaml:"path" json:"path"`
}

// Default returns the factory configuration: a simulated kiosk.
func Default() Config {
	pc := pour.DefaultConfig()
	return Config{
		Kiosk: Kiosk{
			ID:            "kiosk-1",
			Language:      "en",
			Currency:      checkout.DefaultCurrency,
			EnableAlcohol: true,
			MaxItems:      checkout.DefaultMaxItems,
		},
		Hardware: Hardware{
			Backend:     BackendSim,
			PulsesPerMl: hw.DefaultPulsesPerMl,
			SimFlowRate: hw.DefaultSimFlowRate,
		},
		Pour: Pour{
			PollInterval:    Duration(pc.PollInterval),
			Ceiling:         Duration(pc.Ceiling),
			Settle:          Duration(pc.Settle),
			StallWindow:     Duration(pc.StallWindow),
			CompletionRatio: pc.CompletionRatio,
		},
		Verification: Verification{
			Timeout:           Duration(checkout.DefaultVerificationTimeout),
			SimApproveAge:     true,
			SimApprovePayment: true,
		},
		Store: Store{Path: "pourkiosk.db"},
		MQTT:  MQTT{TopicPrefix: events.DefaultTopicPrefix},
	}
}

// Validate checks every section and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Kiosk.ID == "" {
		add("kiosk.id is required")
	}
	if _, err := language.Parse(c.Kiosk.Language); err != nil {
		add("kiosk.language %q is not a BCP 47 tag: %v", c.Kiosk.Language, err)
	}
	if len(c.Kiosk.Currency) != 3 {
		add("kiosk.currency %q is not an ISO 4217 code", c.Kiosk.Currency)
	}
	if c.Kiosk.MaxItems < 0 {
		add("kiosk.max_items must not be negative")
	}

	switch c.Hardware.Backend {
	case BackendSim, BackendGPIO:
	default:
		add("hardware.backend must be %q or %q, got %q", BackendSim, BackendGPIO, c.Hardware.Backend)
	}
	if c.Hardware.PulsesPerMl <= 0 {
		add("hardware.pulses_per_ml must be positive")
	}
	if c.Hardware.SimFlowRate < 0 {
		add("hardware.sim_flow_rate_ml_s must not be negative")
	}

	if err := c.PourConfig().Validate(); err != nil {
		add("pour: %w", err)
	}
	if c.Dispense.FaultRetries < 0 {
		add("dispense.fault_retries must not be negative")
	}
	if c.Verification.Timeout <= 0 {
		add("verification.timeout must be positive")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		add("mqtt.qos must be 0, 1 or 2")
	}

	return errors.Join(errs...)
}

// LanguageTag returns the parsed kiosk language.
func (c Config) LanguageTag() language.Tag {
	tag, err := language.Parse(c.Kiosk.Language)
	if err != nil {
		return language.English
	}
	return tag
}

// PourConfig returns the pour controller configuration.
func (c Config) PourConfig() pour.Config {
	return pour.Config{
		PollInterval:    c.Pour.PollInterval.D(),
		Ceiling:         c.Pour.Ceiling.D(),
		Settle:          c.Pour.Settle.D(),
		StallWindow:     c.Pour.StallWindow.D(),
		StopOnStall:     c.Pour.StopOnStall,
		CompletionRatio: c.Pour.CompletionRatio,
		PulsesPerMl:     c.Hardware.PulsesPerMl,
	}
}

// SimConfig returns the simulated backend configuration.
func (c Config) SimConfig() hw.SimConfig {
	return hw.SimConfig{FlowRate: c.Hardware.SimFlowRate, PulsesPerMl: c.Hardware.PulsesPerMl}
}

// Policy returns the cart rules.
func (c Config) Policy() checkout.Policy {
	return checkout.Policy{MaxItems: c.Kiosk.MaxItems, EnableAlcohol: c.Kiosk.EnableAlcohol}
}

// MQTTConfig returns the telemetry publisher configuration.
func (c Config) MQTTConfig() events.MQTTConfig {
	clientID := c.MQTT.ClientID
	if clientID == "" {
		clientID = c.Kiosk.ID
	}
	return events.MQTTConfig{
		Broker:      c.MQTT.Broker,
		ClientID:    clientID,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         byte(c.MQTT.QoS),
	}
}
