package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/kiosk"
	"github.com/roach88/pourkiosk/internal/pour"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, scenarios, 5)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/faults_and_shortfalls.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.TraceText(s.Name), second.TraceText(s.Name))
}

func seedScenario(steps []Step, assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "built in a test",
		Steps:       steps,
		Assertions:  assertions,
	}
}

func cmd(kind kiosk.CommandKind) Step {
	return Step{Command: kiosk.Command{Kind: kind}}
}

func TestRun_SeedCatalog(t *testing.T) {
	s := seedScenario(
		[]Step{
			{Command: kiosk.Command{Kind: kiosk.CmdAdd, BeverageID: "drink_water123", VolumeMl: 500, Quantity: 1}},
			cmd(kiosk.CmdCheckout),
			cmd(kiosk.CmdPay),
		},
		Assertion{Type: AssertFinalState, State: checkout.StateCompleted},
		Assertion{Type: AssertPourOutcomes, Order: "order-1", Outcomes: []pour.Outcome{pour.OutcomeCompleted}},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_UnexpectedErrorFailsScenario(t *testing.T) {
	s := seedScenario(
		[]Step{cmd(kiosk.CmdPay)},
		Assertion{Type: AssertFinalState, State: checkout.StateSelecting},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.TraceText(s.Name), "error      INVALID_TRIGGER")
}

func TestRun_MissingExpectedErrorFailsScenario(t *testing.T) {
	step := cmd(kiosk.CmdSnapshot)
	step.Expect = &StepExpect{Error: "INVALID_TRIGGER"}
	s := seedScenario([]Step{step}, Assertion{Type: AssertTraceCount, Kind: KindError, Count: 0})

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error "INVALID_TRIGGER"`)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s := seedScenario(
		[]Step{cmd(kiosk.CmdSnapshot)},
		Assertion{Type: AssertFinalState, State: checkout.StateCompleted},
		Assertion{Type: AssertOrderStatus, Order: "order-1", Status: "completed"},
		Assertion{Type: AssertTraceContains, Text: "pour"},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 3)
}

func TestRun_FaultRetries(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/faults_and_shortfalls.yaml")
	require.NoError(t, err)
	s.Setup.FaultRetries = 1
	s.Assertions = []Assertion{
		{Type: AssertPourOutcomes, Order: "order-1", Outcomes: []pour.Outcome{pour.OutcomeCompleted, pour.OutcomeCompleted, pour.OutcomeUnderfilled}},
		{Type: AssertOrderStatus, Order: "order-1", Status: "partial"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_PaymentDeclined(t *testing.T) {
	declined := false
	s := seedScenario(
		[]Step{
			{Command: kiosk.Command{Kind: kiosk.CmdAdd, BeverageID: "drink_coffee123", VolumeMl: 300, Quantity: 1}},
			cmd(kiosk.CmdCheckout),
			{Command: kiosk.Command{Kind: kiosk.CmdPay}, Expect: &StepExpect{State: checkout.StateSelecting}},
		},
		Assertion{Type: AssertTraceContains, Text: "--payment_declined--> selecting [none]"},
		Assertion{Type: AssertTraceCount, Kind: KindPour, Count: 0},
	)
	s.Setup.ApprovePayment = &declined

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ResolvesCatalog(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/cola_two_units.yaml")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "catalog.yaml"), s.Catalog)
	assert.Equal(t, kiosk.CmdAdd, s.Steps[0].Kind)
	assert.Equal(t, 2, s.Steps[0].Quantity)
	require.NotNil(t, s.Steps[0].Expect)
	assert.Equal(t, checkout.StateSelecting, s.Steps[0].Expect.State)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: x\nsteps: [{cmd: checkout}]\nassertions: [{type: final_state, state: selecting}]\n",
			wantErr: "name is required",
		},
		{
			name:    "unknown field",
			content: "name: x\ndescription: x\nsteps: [{cmd: checkout}]\nassertion: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "no steps",
			content: "name: x\ndescription: x\nassertions: [{type: final_state, state: selecting}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown command",
			content: "name: x\ndescription: x\nsteps: [{cmd: dance}]\nassertions: [{type: final_state, state: selecting}]\n",
			wantErr: `unknown command "dance"`,
		},
		{
			name:    "unknown assertion",
			content: "name: x\ndescription: x\nsteps: [{cmd: checkout}]\nassertions: [{type: vibes}]\n",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "stock without amount",
			content: "name: x\ndescription: x\nsteps: [{cmd: checkout}]\nassertions: [{type: stock, beverage: cola}]\n",
			wantErr: "beverage and stock_ml are required",
		},
		{
			name:    "missing catalog",
			content: "name: x\ndescription: x\ncatalog: nope.yaml\nsteps: [{cmd: checkout}]\nassertions: [{type: final_state, state: selecting}]\n",
			wantErr: "catalog file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_OperatorCommands(t *testing.T) {
	path := writeScenario(t, "name: x\ndescription: x\nsteps: [{cmd: emergency_stop}, {cmd: resume}]\nassertions: [{type: trace_count, kind: estop, count: 2}]\n")

	s, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}
