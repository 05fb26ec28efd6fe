package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mealsub/internal/bundle"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/events"
	"github.com/smallbiznis/mealsub/internal/menu"
	"github.com/smallbiznis/mealsub/internal/observability"
	"github.com/smallbiznis/mealsub/internal/redislock"
	"github.com/smallbiznis/mealsub/internal/subscription"
	"github.com/smallbiznis/mealsub/internal/sweeper"
	"github.com/smallbiznis/mealsub/internal/vendors"
	"github.com/smallbiznis/mealsub/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redislock.Module,
		clock.Module,

		// Domain services required by the sweeper
		events.Module,
		menu.Module,
		vendors.Module,
		subscription.Module,
		bundle.Module,

		// No server module!
		sweeper.Module,
		sweeper.CronModule,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
