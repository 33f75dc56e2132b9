package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pourkiosk/internal/dispense"
	"github.com/roach88/pourkiosk/internal/pour"
)

func TestDispense_ItemsFile(t *testing.T) {
	cfg := testEnv(t, "")
	items := writeFile(t, "items.yaml", `items:
  - beverage_id: cola
    volume_ml: 50
    quantity: 2
  - beverage_id: juice
    volume_ml: 50
    quantity: 1
`)

	out, err := execute(t, "", "--config", cfg, "--format", "json", "dispense", items)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   DispenseResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Results, 3)
	assert.Equal(t, pour.OutcomeCompleted, resp.Data.Results[0].Outcome)
	assert.Equal(t, pour.OutcomeCompleted, resp.Data.Results[1].Outcome)
	assert.Equal(t, pour.OutcomeUnconfigured, resp.Data.Results[2].Outcome)
	assert.Equal(t, dispense.FulfillmentPartial, resp.Data.Report.Fulfillment)
	assert.Equal(t, 2, resp.Data.Report.Delivered)
}

func TestDispense_TextSummary(t *testing.T) {
	cfg := testEnv(t, "")
	items := writeFile(t, "items.yaml", "items:\n  - {beverage_id: beer, volume_ml: 50, quantity: 1}\n")

	out, err := execute(t, "", "--config", cfg, "dispense", items)
	require.NoError(t, err)
	assert.Contains(t, out, "#1 beer unit=1 target=50.0ml")
	assert.Contains(t, out, "full: delivered 1/1")
}

func TestDispense_BadItemsFile(t *testing.T) {
	cfg := testEnv(t, "")

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "items: []\n", "items list is required"},
		{"unknown field", "items:\n  - {beverage: cola, volume_ml: 50, quantity: 1}\n", "failed to parse YAML"},
		{"zero quantity", "items:\n  - {beverage_id: cola, volume_ml: 50, quantity: 0}\n", "must be positive"},
		{"missing beverage", "items:\n  - {volume_ml: 50, quantity: 1}\n", "beverage_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", "--config", cfg, "dispense", writeFile(t, "items.yaml", tt.content))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDispense_MissingFile(t *testing.T) {
	_, err := execute(t, "", "dispense", "/nonexistent/items.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
