package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	"gorm.io/gorm"
)

type BundleItem struct {
	VendorID snowflake.ID
	MenuID   snowflake.ID
}

type CreateBundleRequest struct {
	UserID    snowflake.ID
	Items     []BundleItem
	MealType  menudomain.MealType
	StartDate time.Time
	EndDate   time.Time
	AddressID snowflake.ID
}

// CancelResult lists which members the cascade cancelled and which it left
// alone because they were no longer ACTIVE.
type CancelResult struct {
	Bundle    MonthlySubscription `json:"bundle"`
	Cancelled []snowflake.ID      `json:"cancelled_member_ids"`
	Skipped   []snowflake.ID      `json:"skipped_member_ids"`
}

type Service interface {
	CreateBundle(ctx context.Context, req CreateBundleRequest) (MonthlySubscription, error)
	// ActivateBundle activates the bundle and every member inside tx.
	ActivateBundle(ctx context.Context, tx *gorm.DB, id snowflake.ID, paymentID snowflake.ID) (MonthlySubscription, error)
	CancelBundle(ctx context.Context, userID, id snowflake.ID) (CancelResult, error)
	FailBundle(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	ExpireBundle(ctx context.Context, id snowflake.ID, now time.Time) error
	FindOwned(ctx context.Context, userID, id snowflake.ID) (MonthlySubscription, error)
	ListExpirable(ctx context.Context, today time.Time, afterID snowflake.ID, limit int) ([]MonthlySubscription, error)
}

var (
	ErrInvalidBundleSize = errors.New("invalid_bundle_size")
	ErrDuplicateVendor   = errors.New("duplicate_vendor")
	ErrInvalidAddress    = errors.New("invalid_address")
	ErrBundleNotFound    = errors.New("bundle_not_found")
	ErrMemberOutOfSync   = errors.New("bundle_member_out_of_sync")
)
