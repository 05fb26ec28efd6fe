package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/migration"
	"github.com/smallbiznis/mealsub/internal/observability"
	"github.com/smallbiznis/mealsub/internal/redislock"
	"github.com/smallbiznis/mealsub/internal/server"
	"github.com/smallbiznis/mealsub/internal/sweeper"
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
		migration.Module,

		server.Module,

		// Manual sweeps only; the daily schedule lives in the scheduler binary.
		sweeper.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
