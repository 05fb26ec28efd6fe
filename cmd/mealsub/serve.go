package main

import (
	"github.com/smallbiznis/mealsub/internal/migration"
	"github.com/smallbiznis/mealsub/internal/server"
	"github.com/smallbiznis/mealsub/internal/sweeper"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	var withCron bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				core(),
				migration.Module,
				server.Module,
				sweeper.Module,
			}
			if withCron {
				opts = append(opts, sweeper.CronModule)
			}
			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&withCron, "with-cron", false, "also schedule the daily expiration sweep in this process")
	return cmd
}
