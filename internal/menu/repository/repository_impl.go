package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() menudomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*menudomain.Menu, error) {
	var menu menudomain.Menu
	err := db.WithContext(ctx).Raw(
		`SELECT id, vendor_id, name, meal_type, price, active, created_at, updated_at
		 FROM menus WHERE id = ?`,
		id,
	).Scan(&menu).Error
	if err != nil {
		return nil, err
	}
	if menu.ID == 0 {
		return nil, nil
	}
	return &menu, nil
}

func (r *repo) ListByVendor(ctx context.Context, db *gorm.DB, vendorID snowflake.ID) ([]menudomain.Menu, error) {
	var menus []menudomain.Menu
	err := db.WithContext(ctx).Raw(
		`SELECT id, vendor_id, name, meal_type, price, active, created_at, updated_at
		 FROM menus WHERE vendor_id = ? AND active = ?
		 ORDER BY name ASC`,
		vendorID,
		true,
	).Scan(&menus).Error
	if err != nil {
		return nil, err
	}
	return menus, nil
}
