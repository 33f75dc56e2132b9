package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pourkiosk/internal/dispense"
	"github.com/roach88/pourkiosk/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Status string // list orders with this status instead of one order
}

// OrderResults is one order with its pour log.
type OrderResults struct {
	Order   store.OrderRecord `json:"order"`
	Results []dispense.Result `json:"results"`
	Report  dispense.Report   `json:"report"`
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results [order-id]",
		Short: "Show logged orders and their pour results",
		Long: `Read the order log.

With an order ID, shows that order, every pour result recorded for it and
the fulfillment summary. Without one, lists logged orders, optionally
filtered by status (pending, processing, completed, partial, failed).

Examples:
  kiosk results 01928f3e-6b1c-7c3a-9d2e-4f5a6b7c8d9e
  kiosk results --status partial
  kiosk results --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runOrderResults(opts, args[0], cmd)
			}
			return runListOrders(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only list orders with this status")

	return cmd
}

func runOrderResults(opts *ResultsOptions, orderID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := LoadEnv(opts.RootOptions, NeedStore)
	if err != nil {
		return err
	}
	defer env.Close()

	rec, err := env.Store.ReadOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no order %s", orderID), nil)
		return WrapExitError(ExitCommandError, "order not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read order", err)
	}

	results, err := env.Store.ReadPourResults(ctx, orderID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pour results", err)
	}

	out := OrderResults{Order: rec, Results: results, Report: dispense.Summarize(results)}
	if opts.Format == "json" {
		return formatter.Success(out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Order %s: %s\n", rec.ID, rec.Status)
	fmt.Fprintf(w, "  Total: %s %s, created %s\n", rec.Total.StringFixed(2), rec.Currency, rec.CreatedAt.Format("2006-01-02 15:04:05"))
	for _, l := range rec.Lines {
		fmt.Fprintf(w, "  %s %dml x%d\n", l.BeverageID, l.VolumeMl, l.Quantity)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "  No pour results recorded.")
		return nil
	}
	fmt.Fprintln(w, "  Pours:")
	for _, r := range results {
		fmt.Fprintf(w, "    %s\n", r)
	}
	fmt.Fprintf(w, "  %s: delivered %d/%d\n", out.Report.Fulfillment, out.Report.Delivered, out.Report.Units)
	return nil
}

func runListOrders(opts *ResultsOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := LoadEnv(opts.RootOptions, NeedStore)
	if err != nil {
		return err
	}
	defer env.Close()

	records, err := env.Store.ReadOrders(ctx, store.Status(opts.Status))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read orders", err)
	}

	if opts.Format == "json" {
		return formatter.Success(records)
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "No orders found.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(w, "%-40s %-10s %8s %s\n", rec.ID, rec.Status, rec.Total.StringFixed(2), rec.Currency)
	}
	return nil
}
