package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Config    string `json:"config,omitempty"`
	Catalog   string `json:"catalog,omitempty"`
	Beverages int    `json:"beverages"`
	Lines     int    `json:"lines"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog.yaml]",
		Short: "Validate the config and catalog without touching hardware",
		Long: `Validate the --config file and a catalog file.

The catalog argument overrides catalog.path from the config. Checks include
unknown fields, durations, the hardware backend name, beverage types, prices
and volumes, and that no two beverages share a valve or sensor.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogPath := ""
			if len(args) == 1 {
				catalogPath = args[0]
			}
			return runValidate(rootOpts, catalogPath, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, catalogPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid config", err)
	}
	formatter.VerboseLog("config ok: kiosk %s, backend %s", cfg.Kiosk.ID, cfg.Hardware.Backend)

	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	cat, err := loadCatalog(cfg)
	if err == nil {
		err = checkLines(cat)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid catalog", err)
	}

	all, err := cat.Beverages(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list beverages", err)
	}

	result := ValidationResult{
		Valid:     true,
		Config:    opts.Config,
		Catalog:   cfg.Catalog.Path,
		Beverages: len(all),
		Lines:     len(cat.Lines()),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("✓ Config and catalog valid (%d beverage(s) in stock, %d line(s))", result.Beverages, result.Lines))
}

// checkLines rejects catalogs where two beverages share a pin.
func checkLines(cat *catalog.Memory) error {
	valves := make(map[string]bool)
	sensors := make(map[string]bool)
	for _, l := range cat.Lines() {
		if valves[l.ValveID] {
			return fmt.Errorf("valve %s is mapped to more than one beverage", l.ValveID)
		}
		if sensors[l.SensorID] {
			return fmt.Errorf("sensor %s is mapped to more than one beverage", l.SensorID)
		}
		valves[l.ValveID] = true
		sensors[l.SensorID] = true
	}
	return nil
}
