package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		if err := Run(conn); err != nil {
			return err
		}
		if cfg.SeedDemoCatalog {
			return seed.EnsureDemoCatalog(conn, node)
		}
		return nil
	}),
)
