package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/dispense"
	"github.com/roach88/pourkiosk/internal/pour"
)

// DispenseOptions holds flags for the dispense command.
type DispenseOptions struct {
	*RootOptions
}

// itemsFile is the YAML layout read by the dispense command.
type itemsFile struct {
	Items []dispense.OrderItem `yaml:"items"`
}

// DispenseResult is the JSON payload of the dispense command.
type DispenseResult struct {
	Results []dispense.Result `json:"results"`
	Report  dispense.Report   `json:"report"`
}

// NewDispenseCommand creates the dispense command.
func NewDispenseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispenseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispense <items.yaml>",
		Short: "Dispense a list of items without checkout",
		Long: `Run an items file through the dispense scheduler, one pour at a time.

The file lists the items to pour:

  items:
    - beverage_id: cola
      volume_ml: 300
      quantity: 2

No payment is taken and stock is not withdrawn. Every unit is reported, and
a shortfall never stops the remaining units.

Exit codes:
  0 - Every unit was attempted and at least one did not fail in hardware
  1 - Every unit ended in a hardware fault (staff needed)
  2 - Command error (unreadable file, bad config)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispense(opts, args[0], cmd)
		},
	}

	return cmd
}

func runDispense(opts *DispenseOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	items, err := loadItems(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load items", err)
	}

	env, err := LoadEnv(opts.RootOptions, NeedBackend)
	if err != nil {
		return err
	}
	defer env.Close()

	ctrl, err := pour.New(clock.Real{}, env.Config.PourConfig())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pour config", err)
	}
	sched := dispense.NewScheduler(ctrl, env.Backend, env.Catalog,
		dispense.WithFaultRetries(env.Config.Dispense.FaultRetries),
		dispense.WithResultHook(func(r dispense.Result) {
			formatter.VerboseLog("%s", r)
		}),
	)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	formatter.VerboseLog("dispensing %d unit(s) from %s", dispense.Units(items), path)
	results := sched.Dispense(ctx, items)
	report := dispense.Summarize(results)

	if opts.Format == "json" {
		if err := formatter.Success(DispenseResult{Results: results, Report: report}); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range results {
			fmt.Fprintln(w, r)
		}
		fmt.Fprintf(w, "%s: delivered %d/%d, poured %.1f of %.1f ml\n",
			report.Fulfillment, report.Delivered, report.Units, report.PouredMl, report.RequestedMl)
	}

	if report.NeedsStaff() {
		return NewExitError(ExitFailure, "every unit failed in hardware")
	}
	return nil
}

// loadItems reads an items file. Unknown fields are rejected.
func loadItems(path string) ([]dispense.OrderItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}

	var f itemsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(f.Items) == 0 {
		return nil, fmt.Errorf("items list is required and must be non-empty")
	}
	for i, it := range f.Items {
		if it.BeverageID == "" {
			return nil, fmt.Errorf("items[%d]: beverage_id is required", i)
		}
		if it.VolumeMl <= 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: volume_ml and quantity must be positive", i)
		}
	}
	return f.Items, nil
}
