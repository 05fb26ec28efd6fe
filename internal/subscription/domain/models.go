// Package domain contains the meal subscription ledger models and state machine.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
)

// Status is shared by single subscriptions and bundles.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusExpired, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusActive:
		return StatusActive, nil
	case StatusExpired:
		return StatusExpired, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return "", ErrInvalidStatus
	}
}

// IsTransitionAllowed encodes PENDING -> ACTIVE -> {EXPIRED, CANCELLED} and PENDING -> FAILED.
func IsTransitionAllowed(current, target Status) bool {
	switch current {
	case StatusPending:
		return target == StatusActive || target == StatusFailed
	case StatusActive:
		return target == StatusExpired || target == StatusCancelled
	default:
		return false
	}
}

// Kind tells single-vendor subscriptions and monthly bundles apart on payments and events.
type Kind string

const (
	KindSingle  Kind = "SINGLE"
	KindMonthly Kind = "MONTHLY"
)

type MealSubscription struct {
	ID                    snowflake.ID        `gorm:"primaryKey" json:"id"`
	UserID                snowflake.ID        `gorm:"not null;index" json:"user_id"`
	VendorID              snowflake.ID        `gorm:"not null;index" json:"vendor_id"`
	MenuID                snowflake.ID        `gorm:"not null" json:"menu_id"`
	MealType              menudomain.MealType `gorm:"type:text;not null" json:"meal_type"`
	Price                 decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	Status                Status              `gorm:"type:text;not null;index" json:"status"`
	StartDate             time.Time           `gorm:"not null" json:"start_date"`
	EndDate               time.Time           `gorm:"not null;index" json:"end_date"`
	MonthlySubscriptionID *snowflake.ID       `gorm:"index" json:"monthly_subscription_id,omitempty"`
	ActivatedAt           *time.Time          `json:"activated_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	ExpiredAt             *time.Time          `json:"expired_at,omitempty"`
	FailedAt              *time.Time          `json:"failed_at,omitempty"`
	CreatedAt             time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"not null" json:"updated_at"`
}

func (MealSubscription) TableName() string { return "meal_subscriptions" }

func (m MealSubscription) Period() vendordomain.Period {
	return vendordomain.Period{Start: m.StartDate, End: m.EndDate}
}

// InBundle reports whether billing happens through a monthly bundle.
func (m MealSubscription) InBundle() bool {
	return m.MonthlySubscriptionID != nil && *m.MonthlySubscriptionID != 0
}

// EndedBefore reports whether the last served day is strictly before today.
func (m MealSubscription) EndedBefore(today time.Time) bool {
	return m.EndDate.Before(today)
}

// TransitionCmd describes a compare-and-set status change. The optional date
// guards are evaluated in the same statement as the status check.
type TransitionCmd struct {
	ID     snowflake.ID
	UserID snowflake.ID
	From   Status
	To     Status
	At     time.Time

	// NotEndedBefore requires end_date >= the given day.
	NotEndedBefore *time.Time
	// EndedBefore requires end_date < the given day.
	EndedBefore *time.Time
}

// TimestampColumn returns the lifecycle column stamped when entering status.
func TimestampColumn(status Status) string {
	switch status {
	case StatusActive:
		return "activated_at"
	case StatusCancelled:
		return "cancelled_at"
	case StatusExpired:
		return "expired_at"
	case StatusFailed:
		return "failed_at"
	default:
		return ""
	}
}
