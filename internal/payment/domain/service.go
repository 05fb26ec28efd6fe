package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	UserID         snowflake.ID
	SubscriptionID snowflake.ID
	PaymentMethod  string
	Amount         decimal.Decimal
	Currency       string
}

type RefundRequest struct {
	UserID         snowflake.ID
	SubscriptionID snowflake.ID
	Amount         decimal.Decimal
	Reason         string
}

type Service interface {
	// Charge returns the recorded payment together with ErrPaymentFailed when
	// the processor declined.
	Charge(ctx context.Context, req ChargeRequest) (Payment, error)
	Refund(ctx context.Context, req RefundRequest) (Payment, error)
	Summarize(ctx context.Context, userID, subscriptionID snowflake.ID) (Summary, error)
	ListPayments(ctx context.Context, userID, subscriptionID snowflake.ID) ([]Payment, error)
}

var (
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidMethod         = errors.New("invalid_payment_method")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidPaymentDetails = errors.New("invalid_payment_details")
	ErrUnsupportedMethod     = errors.New("unsupported_payment_method")
	ErrAmountMismatch        = errors.New("amount_mismatch")
	ErrAlreadyPaid           = errors.New("already_paid")
	ErrChargeInProgress      = errors.New("charge_in_progress")
	ErrBilledThroughBundle   = errors.New("billed_through_bundle")
	ErrPaymentFailed         = errors.New("payment_failed")
	ErrNothingToRefund       = errors.New("nothing_to_refund")
	ErrRefundExceedsNet      = errors.New("refund_exceeds_net")
	ErrRefundFailed          = errors.New("refund_failed")
	ErrPaymentNotFound       = errors.New("payment_not_found")
)
