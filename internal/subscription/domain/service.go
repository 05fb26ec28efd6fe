package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	"github.com/smallbiznis/mealsub/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateRequest struct {
	UserID    snowflake.ID
	VendorID  snowflake.ID
	MenuID    snowflake.ID
	StartDate time.Time
	EndDate   time.Time

	// MealType, when set, must match the resolved menu.
	MealType menudomain.MealType
}

type ListRequest struct {
	UserID    snowflake.ID
	Status    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Subscriptions []MealSubscription `json:"subscriptions"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (MealSubscription, error)
	CreateTx(ctx context.Context, tx *gorm.DB, req CreateRequest) (MealSubscription, error)
	Activate(ctx context.Context, id snowflake.ID) (MealSubscription, error)
	ActivateTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (MealSubscription, error)
	Cancel(ctx context.Context, userID, id snowflake.ID) (MealSubscription, error)
	CancelTx(ctx context.Context, tx *gorm.DB, userID, id snowflake.ID, today time.Time) (MealSubscription, error)
	Expire(ctx context.Context, id snowflake.ID, now time.Time) error
	Fail(ctx context.Context, id snowflake.ID) error
	FailTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	FindOwned(ctx context.Context, userID, id snowflake.ID) (MealSubscription, error)
	ListOwned(ctx context.Context, req ListRequest) (ListResponse, error)
	ListExpirable(ctx context.Context, today time.Time, afterID snowflake.ID, limit int) ([]MealSubscription, error)
	AttachToBundleTx(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, bundleID snowflake.ID) error
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidReference     = errors.New("invalid_reference")
	ErrCapacityExceeded     = errors.New("capacity_exceeded")
	ErrMealTypeMismatch     = errors.New("meal_type_mismatch")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrAlreadyExpired       = errors.New("already_expired")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
