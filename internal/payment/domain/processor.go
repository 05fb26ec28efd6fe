package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ProcessRequest struct {
	PaymentID snowflake.ID
	Amount    decimal.Decimal
	Currency  string
	Method    string
	Details   Details
}

// ProcessResult is a processor answer. A decline is Success=false with a nil
// error; an error means the outcome could not be obtained.
type ProcessResult struct {
	Success        bool
	TransactionRef string
	DeclineReason  string
}

// Processor is the external payment capability. Implementations must be safe
// for concurrent use.
type Processor interface {
	Name() string
	Methods() []string
	Process(ctx context.Context, req ProcessRequest) (ProcessResult, error)
	Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (ProcessResult, error)
}
