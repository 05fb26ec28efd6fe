// Package domain contains the menu directory models used for price locking.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// MealType is the slot a menu is served in. Bundles require all members to share one.
type MealType string

const (
	MealTypeBreakfast MealType = "BREAKFAST"
	MealTypeLunch     MealType = "LUNCH"
	MealTypeDinner    MealType = "DINNER"
)

func ParseMealType(value string) (MealType, error) {
	switch MealType(strings.ToUpper(strings.TrimSpace(value))) {
	case MealTypeBreakfast:
		return MealTypeBreakfast, nil
	case MealTypeLunch:
		return MealTypeLunch, nil
	case MealTypeDinner:
		return MealTypeDinner, nil
	default:
		return "", ErrInvalidMealType
	}
}

type Menu struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	VendorID  snowflake.ID    `gorm:"not null;index" json:"vendor_id"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	MealType  MealType        `gorm:"type:text;not null" json:"meal_type"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Active    bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Menu) TableName() string { return "menus" }

// Quote is a price resolved for a (vendor, menu) pair at a point in time.
type Quote struct {
	MenuID   snowflake.ID
	VendorID snowflake.ID
	MealType MealType
	Price    decimal.Decimal
}
