package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pourkiosk/internal/catalog"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the beverages on sale",
		Long: `List the in-stock beverages with their sizes, prices and lines.

The catalog comes from the file named in the config (catalog.path), or the
built-in seed beverages when none is set. Alcoholic beverages are marked
with * and are hidden when the kiosk does not sell alcohol.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, cmd)
		},
	}

	return cmd
}

func runCatalog(opts *CatalogOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := LoadEnv(opts.RootOptions, 0)
	if err != nil {
		return err
	}

	all, err := env.Catalog.Beverages(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list beverages", err)
	}
	beverages := make([]catalog.Beverage, 0, len(all))
	for _, b := range all {
		if b.Restricted() && !env.Config.Kiosk.EnableAlcohol {
			continue
		}
		beverages = append(beverages, b)
	}

	if opts.Format == "json" {
		return formatter.Success(beverages)
	}

	w := cmd.OutOrStdout()
	if len(beverages) == 0 {
		fmt.Fprintln(w, "No beverages in stock.")
		return nil
	}
	for _, b := range beverages {
		name := b.Name
		if b.Restricted() {
			name += " *"
		}
		sizes := make([]string, len(b.Volumes))
		for i, v := range b.Volumes {
			sizes[i] = fmt.Sprintf("%dml=%s", v, b.UnitPrice(v).StringFixed(2))
		}
		line := "unconfigured"
		if b.Configured() {
			line = fmt.Sprintf("valve %s / sensor %s", b.ValveID, b.SensorID)
		}
		fmt.Fprintf(w, "%-32s %-18s %-14s stock=%dml  %s\n",
			b.ID, name, b.Type, b.StockMl, strings.Join(sizes, " "))
		formatter.VerboseLog("  %s: %s", b.ID, line)
	}
	return nil
}
