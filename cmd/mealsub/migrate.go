package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/mealsub/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Long: `Applies the embedded schema migrations to the configured database.

Postgres runs the versioned SQL migrations; sqlite and mysql use AutoMigrate.
Outside production the demo vendors and menus are seeded as well unless
SEED_DEMO_CATALOG=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				fx.NopLogger,
				core(),
				migration.Module,
			)
			if err := app.Err(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return app.Stop(ctx)
		},
	}
}
