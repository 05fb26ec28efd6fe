package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// ResolvePrice returns the current price of menuID, which must belong to vendorID.
	ResolvePrice(ctx context.Context, vendorID, menuID snowflake.ID) (Quote, error)
	ResolvePriceTx(ctx context.Context, tx *gorm.DB, vendorID, menuID snowflake.ID) (Quote, error)
	ListByVendor(ctx context.Context, vendorID snowflake.ID) ([]Menu, error)
}

var (
	ErrMenuNotFound       = errors.New("menu_not_found")
	ErrMenuVendorMismatch = errors.New("menu_vendor_mismatch")
	ErrInvalidMealType    = errors.New("invalid_meal_type")
)
