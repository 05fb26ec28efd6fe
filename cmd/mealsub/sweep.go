package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/smallbiznis/mealsub/internal/bundle"
	"github.com/smallbiznis/mealsub/internal/events"
	"github.com/smallbiznis/mealsub/internal/menu"
	"github.com/smallbiznis/mealsub/internal/subscription"
	"github.com/smallbiznis/mealsub/internal/sweeper"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
	"github.com/smallbiznis/mealsub/internal/vendors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func sweepCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire subscriptions and bundles whose end date has passed",
		Long: `Runs the expiration sweep once.

Without --date the run claims today and is skipped when another run already
swept it. With --date the sweep runs as of that day and does not claim it.

Examples:
  mealsub sweep
  mealsub sweep --date 2025-03-11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var asOf *time.Time
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				asOf = &parsed
			}
			return runSweep(cmd.Context(), asOf)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "sweep as of this calendar day (YYYY-MM-DD)")
	return cmd
}

func runSweep(ctx context.Context, asOf *time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var sw *sweeper.Sweeper
	app := fx.New(
		fx.NopLogger,
		core(),
		events.Module,
		menu.Module,
		vendors.Module,
		subscription.Module,
		bundle.Module,
		sweeper.Module,
		fx.Populate(&sw),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	var (
		report sweeperdomain.Report
		err    error
	)
	if asOf != nil {
		report, err = sw.Sweep(ctx, *asOf)
	} else {
		report, err = sw.RunDaily(ctx)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Err != nil {
		return fmt.Errorf("%d record(s) failed: %w", report.Failed, report.Err)
	}
	return nil
}
