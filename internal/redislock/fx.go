package redislock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/mealsub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "mealsub:"

// Module provides a *Locker, or a nil one when REDIS_ADDR is unset.
var Module = fx.Module("redislock",
	fx.Provide(Provide),
)

func Provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Locker {
	if !cfg.Redis.Enabled() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Named("redislock").Info("redis leases enabled", zap.String("addr", cfg.Redis.Addr))
	return NewLocker(client, keyPrefix)
}
