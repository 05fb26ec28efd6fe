package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Menu, error)
	ListByVendor(ctx context.Context, db *gorm.DB, vendorID snowflake.ID) ([]Menu, error)
}
