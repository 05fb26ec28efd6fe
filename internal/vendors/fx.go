package vendors

import (
	"github.com/smallbiznis/mealsub/internal/vendors/repository"
	"github.com/smallbiznis/mealsub/internal/vendors/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vendor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
