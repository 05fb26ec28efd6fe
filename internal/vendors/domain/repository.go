package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Vendor, error)
	// FindByIDForUpdate reads the vendor holding a row lock until db's
	// transaction ends. Drivers without row locks read plainly.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Vendor, error)
	// CountActiveSubscriptions counts ACTIVE subscriptions of the vendor whose
	// date range overlaps period.
	CountActiveSubscriptions(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, period Period) (int64, error)
}
