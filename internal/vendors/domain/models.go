// Package domain contains vendor directory models and the capacity contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Vendor struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"type:text;not null" json:"name"`
	Slug            string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	MonthlyCapacity int          `gorm:"not null" json:"monthly_capacity"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (Vendor) TableName() string { return "vendors" }

// Period is an inclusive calendar date range.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && p.Start.Before(p.End)
}
