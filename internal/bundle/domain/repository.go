package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bundle *MonthlySubscription) error
	InsertMembers(ctx context.Context, db *gorm.DB, members []Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MonthlySubscription, error)
	FindOwned(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*MonthlySubscription, error)
	ListMembers(ctx context.Context, db *gorm.DB, bundleID snowflake.ID) ([]Member, error)
	Transition(ctx context.Context, db *gorm.DB, cmd TransitionCmd) (bool, error)
	ListExpirable(ctx context.Context, db *gorm.DB, today time.Time, afterID snowflake.ID, limit int) ([]MonthlySubscription, error)
}
