package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// ListBySubscription returns the ledger in creation order.
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Payment, error)
	// Transition moves a PENDING payment to a final status and reports whether
	// the row changed.
	Transition(ctx context.Context, db *gorm.DB, cmd TransitionCmd) (bool, error)
	// CountCharges counts positive payments of the subscription in status.
	CountCharges(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, status Status) (int64, error)
	// FailStaleCharges fails positive PENDING payments of the subscription
	// created before cutoff and returns how many rows changed.
	FailStaleCharges(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, cutoff, at time.Time, reason string) (int64, error)
}
