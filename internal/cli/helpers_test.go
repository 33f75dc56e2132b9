package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testCatalog = `beverages:
  - id: cola
    name: Cola
    type: non-alcoholic
    volumes: [50, 100]
    price_per_100ml: "0.50"
    stock_ml: 5000
    valve_id: "17"
    sensor_id: "27"
  - id: beer
    name: Beer
    type: alcoholic
    volumes: [50]
    price_per_100ml: "1.20"
    stock_ml: 3000
    valve_id: "18"
    sensor_id: "28"
  - id: juice
    name: Juice
    type: non-alcoholic
    volumes: [50]
    price_per_100ml: "0.80"
    stock_ml: 1000
`

// testEnv writes a fast simulated kiosk config plus the test catalog into a
// temp dir and returns the config path. extra is appended to the config.
func testEnv(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o644))

	cfg := fmt.Sprintf(`kiosk:
  id: test-kiosk
hardware:
  backend: sim
  sim_flow_rate_ml_s: 500
pour:
  poll_interval: 5ms
  settle: 5ms
  stall_window: 1s
  ceiling: 5s
store:
  path: %s
catalog:
  path: %s
%s`, filepath.Join(dir, "kiosk.db"), catalogPath, extra)

	cfgPath := filepath.Join(dir, "kiosk.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runWith executes a single subcommand built outside the root, so tests can
// set options the flags do not expose.
func runWith(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
