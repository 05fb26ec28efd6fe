package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Payment is one row of the append-only ledger. Refunds carry a negative amount.
type Payment struct {
	ID               snowflake.ID                `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID                `gorm:"not null;index" json:"user_id"`
	SubscriptionID   snowflake.ID                `gorm:"not null;index:idx_payments_subscription" json:"subscription_id"`
	SubscriptionKind subscriptiondomain.Kind     `gorm:"type:text;not null" json:"subscription_kind"`
	Amount           decimal.Decimal             `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status           Status                      `gorm:"type:text;not null" json:"status"`
	PaymentMethod    string                      `gorm:"type:text;not null" json:"payment_method"`
	PaymentDetails   datatypes.JSONType[Details] `gorm:"type:json" json:"payment_details"`
	FailureReason    *string                     `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt        time.Time                   `gorm:"not null;index:idx_payments_subscription" json:"created_at"`
	PaidAt           *time.Time                  `json:"paid_at,omitempty"`
	UpdatedAt        time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) Details() Details { return p.PaymentDetails.Data() }

func (p Payment) IsRefund() bool { return p.Amount.IsNegative() }

// Details is the closed set of keys stored in payment_details.
type Details struct {
	TransactionRef    string `json:"transactionRef,omitempty"`
	Currency          string `json:"currency,omitempty"`
	RefundReason      string `json:"refundReason,omitempty"`
	OriginalPaymentID string `json:"originalPaymentId,omitempty"`
}

// ParseDetails decodes a details object and rejects keys outside the known set.
func ParseDetails(raw []byte) (Details, error) {
	var details Details
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return details, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&details); err != nil {
		return Details{}, ErrInvalidPaymentDetails
	}
	if dec.More() {
		return Details{}, ErrInvalidPaymentDetails
	}
	details.Currency = strings.ToUpper(strings.TrimSpace(details.Currency))
	return details, nil
}

type TransitionCmd struct {
	ID            snowflake.ID
	To            Status
	At            time.Time
	Details       Details
	FailureReason string
}
