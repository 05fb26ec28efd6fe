package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (Vendor, error)
	// HasCapacity reports whether the vendor can take one more subscription in
	// period. A nil tx reads outside any transaction.
	HasCapacity(ctx context.Context, tx *gorm.DB, vendorID snowflake.ID, period Period) (bool, error)
	// HoldCapacity is HasCapacity with the vendor row locked for the rest of
	// tx, so concurrent activations against one vendor serialize.
	HoldCapacity(ctx context.Context, tx *gorm.DB, vendorID snowflake.ID, period Period) (bool, error)
}

var (
	ErrVendorNotFound = errors.New("vendor_not_found")
	ErrInvalidPeriod  = errors.New("invalid_period")
)
