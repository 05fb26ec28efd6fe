package subscription

import (
	"github.com/smallbiznis/mealsub/internal/subscription/repository"
	"github.com/smallbiznis/mealsub/internal/subscription/service"
	"go.uber.org/fx"
)

// Module provides the subscription ledger and its gorm repository.
var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
