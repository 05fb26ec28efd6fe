package payment

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/payment/adapters"
	"github.com/smallbiznis/mealsub/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/mealsub/internal/payment/repository"
	paymentservice "github.com/smallbiznis/mealsub/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(paymentservice.NewService),
)

// NewRegistry registers the processors this deployment can route charges to.
// Only the sandbox ships today.
func NewRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	var declines []decimal.Decimal
	for _, raw := range cfg.Payment.SandboxDeclineAmounts {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			log.Warn("ignoring sandbox decline amount", zap.String("value", raw), zap.Error(err))
			continue
		}
		declines = append(declines, amount)
	}
	return adapters.NewRegistry(sandbox.New(sandbox.Options{DeclineAmounts: declines}))
}
