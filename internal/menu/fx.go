package menu

import (
	"github.com/smallbiznis/mealsub/internal/menu/repository"
	"github.com/smallbiznis/mealsub/internal/menu/service"
	"go.uber.org/fx"
)

var Module = fx.Module("menu.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
