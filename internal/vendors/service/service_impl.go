package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo vendordomain.Repository
}

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo vendordomain.Repository
}

func NewService(p ServiceParam) vendordomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("vendor.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (vendordomain.Vendor, error) {
	vendor, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return vendordomain.Vendor{}, err
	}
	if vendor == nil {
		return vendordomain.Vendor{}, vendordomain.ErrVendorNotFound
	}
	return *vendor, nil
}

func (s *Service) HasCapacity(ctx context.Context, tx *gorm.DB, vendorID snowflake.ID, period vendordomain.Period) (bool, error) {
	return s.capacity(ctx, tx, vendorID, period, s.repo.FindByID)
}

func (s *Service) HoldCapacity(ctx context.Context, tx *gorm.DB, vendorID snowflake.ID, period vendordomain.Period) (bool, error) {
	return s.capacity(ctx, tx, vendorID, period, s.repo.FindByIDForUpdate)
}

type vendorLookup func(ctx context.Context, db *gorm.DB, id snowflake.ID) (*vendordomain.Vendor, error)

func (s *Service) capacity(ctx context.Context, tx *gorm.DB, vendorID snowflake.ID, period vendordomain.Period, lookup vendorLookup) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if !period.Valid() {
		return false, vendordomain.ErrInvalidPeriod
	}

	vendor, err := lookup(ctx, tx, vendorID)
	if err != nil {
		return false, err
	}
	if vendor == nil {
		return false, vendordomain.ErrVendorNotFound
	}

	active, err := s.repo.CountActiveSubscriptions(ctx, tx, vendorID, period)
	if err != nil {
		return false, err
	}

	ok := active < int64(vendor.MonthlyCapacity)
	if !ok {
		s.log.Debug("vendor at capacity",
			zap.String("vendor_id", vendorID.String()),
			zap.Int64("active", active),
			zap.Int("capacity", vendor.MonthlyCapacity),
		)
	}
	return ok, nil
}
