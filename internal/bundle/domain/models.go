// Package domain contains monthly bundle models. A bundle groups one to four
// single-vendor subscriptions that are billed and tracked together.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
)

const (
	MinVendors = 1
	MaxVendors = 4
)

type MonthlySubscription struct {
	ID          snowflake.ID              `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID              `gorm:"not null;index" json:"user_id"`
	MealType    menudomain.MealType       `gorm:"type:text;not null" json:"meal_type"`
	TotalPrice  decimal.Decimal           `gorm:"type:numeric(12,2);not null" json:"total_price"`
	StartDate   time.Time                 `gorm:"not null" json:"start_date"`
	EndDate     time.Time                 `gorm:"not null;index" json:"end_date"`
	Status      subscriptiondomain.Status `gorm:"type:text;not null;index" json:"status"`
	AddressID   snowflake.ID              `gorm:"not null" json:"address_id"`
	PaymentID   *snowflake.ID             `json:"payment_id,omitempty"`
	ActivatedAt *time.Time                `json:"activated_at,omitempty"`
	CancelledAt *time.Time                `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time                `json:"expired_at,omitempty"`
	FailedAt    *time.Time                `json:"failed_at,omitempty"`
	CreatedAt   time.Time                 `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time                 `gorm:"not null" json:"updated_at"`

	// Populated from monthly_subscription_members, ordered by position.
	VendorIDs             []snowflake.ID `gorm:"-" json:"vendor_ids"`
	MemberSubscriptionIDs []snowflake.ID `gorm:"-" json:"member_subscription_ids"`
}

func (MonthlySubscription) TableName() string { return "monthly_subscriptions" }

func (m MonthlySubscription) EndedBefore(today time.Time) bool {
	return m.EndDate.Before(today)
}

// Member pairs a vendor with the subscription created for it, by position.
type Member struct {
	MonthlySubscriptionID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Position              int          `gorm:"primaryKey;autoIncrement:false"`
	VendorID              snowflake.ID `gorm:"not null"`
	SubscriptionID        snowflake.ID `gorm:"not null;uniqueIndex"`
}

func (Member) TableName() string { return "monthly_subscription_members" }

func (m *MonthlySubscription) SetMembers(members []Member) {
	m.VendorIDs = make([]snowflake.ID, 0, len(members))
	m.MemberSubscriptionIDs = make([]snowflake.ID, 0, len(members))
	for _, member := range members {
		m.VendorIDs = append(m.VendorIDs, member.VendorID)
		m.MemberSubscriptionIDs = append(m.MemberSubscriptionIDs, member.SubscriptionID)
	}
}

// TransitionCmd mirrors the single subscription compare-and-set.
type TransitionCmd struct {
	ID             snowflake.ID
	UserID         snowflake.ID
	From           subscriptiondomain.Status
	To             subscriptiondomain.Status
	At             time.Time
	PaymentID      *snowflake.ID
	NotEndedBefore *time.Time
	EndedBefore    *time.Time
}
