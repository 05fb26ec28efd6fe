package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Kept as a literal so the vendor package does not depend on the subscription ledger.
const statusActive = "ACTIVE"

type repo struct{}

func Provide() vendordomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*vendordomain.Vendor, error) {
	var vendor vendordomain.Vendor
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, monthly_capacity, created_at, updated_at
		 FROM vendors WHERE id = ?`,
		id,
	).Scan(&vendor).Error
	if err != nil {
		return nil, err
	}
	if vendor.ID == 0 {
		return nil, nil
	}
	return &vendor, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*vendordomain.Vendor, error) {
	var vendors []vendordomain.Vendor
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&vendors).Error
	if err != nil {
		return nil, err
	}
	if len(vendors) == 0 {
		return nil, nil
	}
	return &vendors[0], nil
}

func (r *repo) CountActiveSubscriptions(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, period vendordomain.Period) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM meal_subscriptions
		 WHERE vendor_id = ? AND status = ?
		   AND start_date <= ? AND end_date >= ?`,
		vendorID,
		statusActive,
		period.End,
		period.Start,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
