package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/kiosk"
	"github.com/roach88/pourkiosk/internal/pour"
)

// Scenario is one end-to-end kiosk run.
type Scenario struct {
	// Name uniquely identifies the scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Catalog is a catalog file. Relative paths are resolved against the
	// scenario file. Empty means the seed beverages.
	Catalog string `yaml:"catalog,omitempty"`

	// Setup tunes the kiosk and the simulated lines before the first step.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup holds the kiosk settings and simulated hardware conditions.
type Setup struct {
	// EnableAlcohol defaults to true.
	EnableAlcohol *bool `yaml:"enable_alcohol,omitempty"`
	MaxItems      int   `yaml:"max_items,omitempty"`
	FaultRetries  int   `yaml:"fault_retries,omitempty"`
	// StopOnStall ends pours whose flow stopped, as pour.stop_on_stall.
	StopOnStall bool `yaml:"stop_on_stall,omitempty"`
	// ApproveAge and ApprovePayment drive the simulated ports; both
	// default to true.
	ApproveAge     *bool `yaml:"approve_age,omitempty"`
	ApprovePayment *bool `yaml:"approve_payment,omitempty"`

	Lines []LineSetup `yaml:"lines,omitempty"`
}

// LineSetup conditions one simulated line, identified by its valve.
type LineSetup struct {
	Valve string `yaml:"valve"`
	// FlowRate overrides the line's flow in ml/s.
	FlowRate *float64 `yaml:"flow_rate,omitempty"`
	// SupplyMl limits the liquid left behind the valve.
	SupplyMl *float64 `yaml:"supply_ml,omitempty"`
	FailOpen  int      `yaml:"fail_open,omitempty"`
	FailClose int      `yaml:"fail_close,omitempty"`
	// FailRead injects read faults on the line's sensor.
	FailRead int `yaml:"fail_read,omitempty"`
	// EstopOnOpen presses the emergency stop the first time the valve opens.
	EstopOnOpen bool `yaml:"estop_on_open,omitempty"`
}

// Step is one command plus what the kiosk should answer.
type Step struct {
	kiosk.Command `yaml:",inline"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect is checked against the reply to a step.
type StepExpect struct {
	// State is the session state after the step.
	State checkout.State `yaml:"state,omitempty"`
	// Error is a checkout error code, or text the error message contains.
	// Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the end state of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	State    checkout.State `yaml:"state,omitempty"`
	Order    string         `yaml:"order,omitempty"`
	Status   string         `yaml:"status,omitempty"`
	Outcomes []pour.Outcome `yaml:"outcomes,omitempty"`
	Beverage string         `yaml:"beverage,omitempty"`
	StockMl  *int           `yaml:"stock_ml,omitempty"`
	Text     string         `yaml:"text,omitempty"`
	Texts    []string       `yaml:"texts,omitempty"`
	Kind     string         `yaml:"kind,omitempty"`
	Count    int            `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertOrderStatus   = "order_status"
	AssertPourOutcomes  = "pour_outcomes"
	AssertStock         = "stock"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "assertion:" for "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog file not found: %s", s.Catalog)
		}
	}

	for i, l := range s.Setup.Lines {
		if l.Valve == "" {
			return fmt.Errorf("setup.lines[%d]: valve is required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Kind.Operator() {
			continue
		}
		if err := step.Command.Validate(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertOrderStatus:
		if a.Order == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: order and status are required for order_status", index)
		}
	case AssertPourOutcomes:
		if a.Order == "" {
			return fmt.Errorf("assertions[%d]: order is required for pour_outcomes", index)
		}
	case AssertStock:
		if a.Beverage == "" || a.StockMl == nil {
			return fmt.Errorf("assertions[%d]: beverage and stock_ml are required for stock", index)
		}
	case AssertTraceContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Texts) == 0 {
			return fmt.Errorf("assertions[%d]: texts list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
