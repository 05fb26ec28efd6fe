package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *MealSubscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MealSubscription, error)
	FindOwned(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*MealSubscription, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]MealSubscription, error)
	// Transition applies cmd and reports whether exactly one row changed.
	Transition(ctx context.Context, db *gorm.DB, cmd TransitionCmd) (bool, error)
	AttachToBundle(ctx context.Context, db *gorm.DB, ids []snowflake.ID, bundleID snowflake.ID, at time.Time) error
	// ListExpirable returns ACTIVE rows with end_date < today and id > afterID, ordered by id.
	ListExpirable(ctx context.Context, db *gorm.DB, today time.Time, afterID snowflake.ID, limit int) ([]MealSubscription, error)
}
