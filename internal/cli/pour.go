package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/pour"
)

// PourOptions holds flags for the pour command.
type PourOptions struct {
	*RootOptions
	VolumeMl float64
}

// NewPourCommand creates the pour command.
func NewPourCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PourOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pour <beverage-id>",
		Short: "Run a single maintenance pour",
		Long: `Pour one measured volume through a beverage's line, bypassing checkout.

Use it to prime or flush a line and to check the flow sensor calibration.
Stock is not withdrawn and nothing is logged to the order database.

Exit codes:
  0 - The pour completed
  1 - The pour ended short (underfilled, timed out or hardware fault)
  2 - Command error (unknown beverage, unconfigured line, bad config)

Examples:
  kiosk pour cola --ml 300
  kiosk pour beer --ml 50 --config kiosk.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPour(opts, args[0], cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.VolumeMl, "ml", 0, "volume to pour in ml (default: the beverage's smallest size)")

	return cmd
}

func runPour(opts *PourOptions, beverageID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := LoadEnv(opts.RootOptions, NeedBackend)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	b, err := env.Catalog.Beverage(ctx, beverageID)
	if errors.Is(err, catalog.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("unknown beverage %q", beverageID), nil)
		return WrapExitError(ExitCommandError, "unknown beverage", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read catalog", err)
	}
	if !b.Configured() {
		return NewExitError(ExitCommandError, fmt.Sprintf("beverage %s has no valve/sensor mapping", b.ID))
	}

	target := opts.VolumeMl
	if target == 0 && len(b.Volumes) > 0 {
		target = float64(b.Volumes[0])
	}

	ctrl, err := pour.New(clock.Real{}, env.Config.PourConfig(), pour.WithProgress(func(p pour.Progress) {
		formatter.VerboseLog("poured %.1f/%.1f ml after %s", p.PouredMl, p.TargetMl, p.Elapsed)
	}))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pour config", err)
	}

	res, err := maintenancePour(ctx, ctrl, env, b, target)
	if err != nil {
		return WrapExitError(ExitCommandError, "pour did not start", err)
	}

	if opts.Format == "json" {
		if err := formatter.Success(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", b.ID, res)
		if res.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  fault: %v\n", res.Err)
		}
	}

	if !res.Outcome.Delivered() {
		return NewExitError(ExitFailure, fmt.Sprintf("pour ended %s", res.Outcome))
	}
	return nil
}

// maintenancePour pours target ml through the beverage's line.
func maintenancePour(ctx context.Context, ctrl *pour.Controller, env *Env, b catalog.Beverage, target float64) (pour.Result, error) {
	valve, err := env.Backend.Valve(b.ValveID)
	if err != nil {
		return pour.Result{}, err
	}
	sensor, err := env.Backend.Sensor(b.SensorID)
	if err != nil {
		return pour.Result{}, err
	}
	return ctrl.Pour(ctx, valve, sensor, target)
}
