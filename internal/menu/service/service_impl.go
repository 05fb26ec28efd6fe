package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo menudomain.Repository
}

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo menudomain.Repository
}

func NewService(p ServiceParam) menudomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("menu.service"),
		repo: p.Repo,
	}
}

func (s *Service) ResolvePrice(ctx context.Context, vendorID, menuID snowflake.ID) (menudomain.Quote, error) {
	return s.ResolvePriceTx(ctx, s.db, vendorID, menuID)
}

func (s *Service) ResolvePriceTx(ctx context.Context, tx *gorm.DB, vendorID, menuID snowflake.ID) (menudomain.Quote, error) {
	if tx == nil {
		tx = s.db
	}
	if menuID == 0 {
		return menudomain.Quote{}, menudomain.ErrMenuNotFound
	}

	menu, err := s.repo.FindByID(ctx, tx, menuID)
	if err != nil {
		return menudomain.Quote{}, err
	}
	if menu == nil || !menu.Active {
		return menudomain.Quote{}, menudomain.ErrMenuNotFound
	}
	if menu.VendorID != vendorID {
		return menudomain.Quote{}, menudomain.ErrMenuVendorMismatch
	}

	return menudomain.Quote{
		MenuID:   menu.ID,
		VendorID: menu.VendorID,
		MealType: menu.MealType,
		Price:    menu.Price.Round(2),
	}, nil
}

func (s *Service) ListByVendor(ctx context.Context, vendorID snowflake.ID) ([]menudomain.Menu, error) {
	return s.repo.ListByVendor(ctx, s.db, vendorID)
}
