package events

import (
	"context"

	"github.com/smallbiznis/mealsub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
	fx.Provide(
		NewDispatcher,
		func(d *Dispatcher) Emitter { return d },
	),
)

// NewPublisher selects the broker publisher when AMQP is configured and falls
// back to the log publisher when the broker cannot be reached at startup.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if !cfg.AMQP.Enabled() {
		return NewLogPublisher(log)
	}

	pub, err := NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	if err != nil {
		log.Warn("rabbitmq unavailable, events will be logged only", zap.Error(err))
		return NewLogPublisher(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	log.Info("rabbitmq event publisher ready", zap.String("exchange", cfg.AMQP.Exchange))
	return pub
}
